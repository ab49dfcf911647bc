package models

import (
	"fmt"
	"time"
)

// SyncStatus enumerates the states of the sync engine.
type SyncStatus int

const (
	StatusIdle SyncStatus = iota
	StatusDownloading
	StatusPaused
	StatusError
)

func (s SyncStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDownloading:
		return "downloading"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return ""
	}
}

// SyncState is a snapshot of the sync engine state.
//
// Current and Total are set only while downloading; Message only on error.
type SyncState struct {
	Status  SyncStatus
	Current int
	Total   int
	Message string
}

func Idle() SyncState   { return SyncState{Status: StatusIdle} }
func Paused() SyncState { return SyncState{Status: StatusPaused} }
func Downloading(current, total int) SyncState {
	return SyncState{Status: StatusDownloading, Current: current, Total: total}
}
func Failed(msg string) SyncState { return SyncState{Status: StatusError, Message: msg} }

func (s SyncState) String() string {
	switch s.Status {
	case StatusDownloading:
		return fmt.Sprintf("downloading(%d,%d)", s.Current, s.Total)
	case StatusError:
		return fmt.Sprintf("error(%s)", s.Message)
	default:
		return s.Status.String()
	}
}

// StatusSnapshot is the agent status served over HTTP.
type StatusSnapshot struct {
	State       string    `json:"state"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Message     string    `json:"message,omitempty"`
	CacheBytes  int64     `json:"cache_bytes"`
	CacheCount  int       `json:"cache_count"`
	BudgetBytes int64     `json:"budget_bytes"`
	Queued      int       `json:"queued"`
	NextSyncAt  time.Time `json:"next_sync_at,omitempty"`
}
