// Package services talks to the remote flock servers and to a running agent.
//
// # Catalog
//
// [CatalogClient] performs the two step lookup: the redirect service names the active
// catalog host, then the catalog document is fetched from it. Catalog bodies may be
// gzip encoded; [Gunzip] skips the header by hand and inflates the raw DEFLATE
// stream. [ParseCatalog] turns the document into [models.ContentItem] values and
// [Diff] selects the ones not cached yet.
//
// # Content and votes
//
// [Downloader] streams content files to the staging area and honours context
// cancellation so a pause can interrupt a transfer. [VoteClient] submits votes;
// anything but HTTP 200 is a failure.
//
// # TLS
//
// Clients built by [NewHTTPClient] verify certificates normally except for hosts
// under sheepserver.net and archive.org, which serve self-signed certificates.
//
// # Errors
//
// Clients wrap sentinel errors from the shared package:
//   - [shared.ErrCatalogUnreachable] : redirect or catalog request failed
//   - [shared.ErrCatalogCorrupt] : catalog could not be decoded
//   - [shared.ErrDownloadFailed] : transfer error on a content file
//   - [shared.ErrVoteSubmissionFailed] : vote rejected or not delivered
package services
