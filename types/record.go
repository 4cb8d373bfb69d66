package types

import "time"

type DataInterval struct {
	Start time.Time
	End   time.Time
}

type DagRun struct {
	RunID        string
	DAGID        string
	RunType      RunType
	LogicalDate  time.Time
	DataInterval DataInterval
	State        StatusType
	QueuedAt     time.Time
	StartTime    time.Time `json:",omitempty"`
	EndTime      time.Time `json:",omitempty"`
	Conf         Data      `json:",omitempty"`
}

type TaskInstance struct {
	DAGID     string
	TaskID    string
	RunID     string
	State     StatusType
	TryNumber int
	MaxTries  int

	// JobID identifies a single try.
	JobID    string        `json:",omitempty"`
	Hostname string        `json:",omitempty"`
	Start    time.Time     `json:",omitempty"`
	End      time.Time     `json:",omitempty"`
	Duration time.Duration `json:",omitempty"`
	Error    string        `json:",omitempty"`
	Output   Data          `json:",omitempty"`

	NextRetry time.Time `json:",omitempty"`
}

type RunStatus struct {
	Run   *DagRun
	Tasks map[string]*TaskInstance
}
