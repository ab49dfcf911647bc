package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Catalog and download errors
	ErrCatalogUnreachable  = fmt.Errorf("catalog unreachable")
	ErrCatalogCorrupt      = fmt.Errorf("catalog corrupt")
	ErrDownloadFailed      = fmt.Errorf("download failed")
	ErrInsufficientStorage = fmt.Errorf("insufficient storage")
	ErrInvalidItem         = fmt.Errorf("invalid content item")
	ErrEntryNotFound       = fmt.Errorf("cache entry not found")

	// Voting errors
	ErrVoteSubmissionFailed = fmt.Errorf("vote submission failed")
	ErrNothingPlaying       = fmt.Errorf("nothing playing")

	// Event bus errors
	ErrInvalidPayload = fmt.Errorf("invalid event payload")
	ErrBusClosed      = fmt.Errorf("event bus closed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
