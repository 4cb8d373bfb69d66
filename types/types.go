package types

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type StatusType int32

const (
	None           StatusType = 0
	Scheduled      StatusType = 1
	Queued         StatusType = 2
	Running        StatusType = 3
	UpForRetry     StatusType = 4
	Success        StatusType = 5
	Failed         StatusType = 6
	UpstreamFailed StatusType = 7
	Skipped        StatusType = 8
)

var statusNames = map[StatusType]string{
	None:           "none",
	Scheduled:      "scheduled",
	Queued:         "queued",
	Running:        "running",
	UpForRetry:     "up_for_retry",
	Success:        "success",
	Failed:         "failed",
	UpstreamFailed: "upstream_failed",
	Skipped:        "skipped",
}

func (s StatusType) String() string {
	if name, exists := statusNames[s]; exists {
		return name
	}
	return "unknown"
}

// IsFinished reports whether no further transition is expected.
func (s StatusType) IsFinished() bool {
	switch s {
	case Success, Failed, UpstreamFailed, Skipped:
		return true
	}
	return false
}

// ParseStatus is the inverse of StatusType.String.
func ParseStatus(s string) (StatusType, bool) {
	for status, name := range statusNames {
		if name == s {
			return status, true
		}
	}
	return None, false
}

type RunType string

const (
	RunTypeScheduled RunType = "scheduled"
	RunTypeManual    RunType = "manual"
	RunTypeBackfill  RunType = "backfill"
)

// Context is handed to operators for the duration of one task try.
type Context interface {
	context.Context

	GetRunID() string
	GetDAGID() string
	GetTaskID() string
	GetTryNumber() int
	GetLogicalDate() time.Time
	// GetTemplateContext returns the values available to templated fields.
	GetTemplateContext() Data
	Logger() *logrus.Entry
}
