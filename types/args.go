package types

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

type TriggerRule string

const (
	AllSuccess TriggerRule = "all_success"
	AllDone    TriggerRule = "all_done"
	AllFailed  TriggerRule = "all_failed"
	OneSuccess TriggerRule = "one_success"
	OneFailed  TriggerRule = "one_failed"
	NoneFailed TriggerRule = "none_failed"
)

func (r TriggerRule) Valid() bool {
	switch r {
	case AllSuccess, AllDone, AllFailed, OneSuccess, OneFailed, NoneFailed:
		return true
	}
	return false
}

// DefaultArgs are applied to every task of a DAG unless the task overrides them.
type DefaultArgs struct {
	Owner      string        `json:",omitempty" default:"airflow"`
	Retries    int           `json:",omitempty"`
	RetryDelay time.Duration `json:",omitempty" default:"5m"`
	/**
	 * RetryExponentialBackoff doubles the delay on every try,
	 * MaxRetryDelay caps it when set.
	 */
	RetryExponentialBackoff bool          `json:",omitempty"`
	MaxRetryDelay           time.Duration `json:",omitempty"`
	DependsOnPast           bool          `json:",omitempty"`
	ExecutionTimeout        time.Duration `json:",omitempty"`
	TriggerRule             TriggerRule   `json:",omitempty" default:"all_success"`
	Email                   []string      `json:",omitempty"`
}

type DAGArgs struct {
	Description string `json:",omitempty"`
	/**
	 * Schedule accepts presets (@daily, @once ...), cron expressions
	 * and "@every <duration>". ScheduleInterval takes precedence when set.
	 * Both empty means the DAG only runs when triggered.
	 */
	Schedule         string        `json:",omitempty"`
	ScheduleInterval time.Duration `json:",omitempty"`

	StartDate time.Time  `json:",omitempty"`
	EndDate   *time.Time `json:",omitempty"`
	Catchup   bool       `json:",omitempty"`
	Tags      []string   `json:",omitempty"`
	DocMD     string     `json:",omitempty"`

	MaxActiveRuns int  `json:",omitempty" default:"16"`
	Params        Data `json:",omitempty"`

	DefaultArgs DefaultArgs
}

// NewDAGArgs fills the zero fields of args with their defaults.
func NewDAGArgs(args DAGArgs) DAGArgs {
	defaults.SetDefaults(&args)
	return args
}

// TaskArgs are the effective settings of one task.
type TaskArgs struct {
	Owner                   string        `json:",omitempty"`
	Retries                 int           `json:",omitempty"`
	RetryDelay              time.Duration `json:",omitempty"`
	RetryExponentialBackoff bool          `json:",omitempty"`
	MaxRetryDelay           time.Duration `json:",omitempty"`
	DependsOnPast           bool          `json:",omitempty"`
	ExecutionTimeout        time.Duration `json:",omitempty"`
	TriggerRule             TriggerRule   `json:",omitempty"`
	DocMD                   string        `json:",omitempty"`
}

// TaskOptions only hold what a task explicitly overrides.
type TaskOptions struct {
	Owner                   *string
	Retries                 *int
	RetryDelay              *time.Duration
	RetryExponentialBackoff *bool
	MaxRetryDelay           *time.Duration
	DependsOnPast           *bool
	ExecutionTimeout        *time.Duration
	TriggerRule             *TriggerRule
	DocMD                   string
}

type TaskOption func(*TaskOptions)

func WithOwner(owner string) TaskOption {
	return func(opts *TaskOptions) {
		opts.Owner = &owner
	}
}

func WithRetries(retries int) TaskOption {
	return func(opts *TaskOptions) {
		opts.Retries = &retries
	}
}

func WithRetryDelay(delay time.Duration) TaskOption {
	return func(opts *TaskOptions) {
		opts.RetryDelay = &delay
	}
}

func WithRetryExponentialBackoff(enabled bool, maxDelay time.Duration) TaskOption {
	return func(opts *TaskOptions) {
		opts.RetryExponentialBackoff = &enabled
		opts.MaxRetryDelay = &maxDelay
	}
}

func WithDependsOnPast(dependsOnPast bool) TaskOption {
	return func(opts *TaskOptions) {
		opts.DependsOnPast = &dependsOnPast
	}
}

func WithExecutionTimeout(timeout time.Duration) TaskOption {
	return func(opts *TaskOptions) {
		opts.ExecutionTimeout = &timeout
	}
}

func WithTriggerRule(rule TriggerRule) TaskOption {
	return func(opts *TaskOptions) {
		opts.TriggerRule = &rule
	}
}

func WithDocMD(doc string) TaskOption {
	return func(opts *TaskOptions) {
		opts.DocMD = doc
	}
}

// Resolve overlays the explicit overrides on top of the DAG default args.
func (o *TaskOptions) Resolve(def DefaultArgs) TaskArgs {
	args := TaskArgs{
		Owner:                   def.Owner,
		Retries:                 def.Retries,
		RetryDelay:              def.RetryDelay,
		RetryExponentialBackoff: def.RetryExponentialBackoff,
		MaxRetryDelay:           def.MaxRetryDelay,
		DependsOnPast:           def.DependsOnPast,
		ExecutionTimeout:        def.ExecutionTimeout,
		TriggerRule:             def.TriggerRule,
		DocMD:                   o.DocMD,
	}
	if o.Owner != nil {
		args.Owner = *o.Owner
	}
	if o.Retries != nil {
		args.Retries = *o.Retries
	}
	if o.RetryDelay != nil {
		args.RetryDelay = *o.RetryDelay
	}
	if o.RetryExponentialBackoff != nil {
		args.RetryExponentialBackoff = *o.RetryExponentialBackoff
	}
	if o.MaxRetryDelay != nil {
		args.MaxRetryDelay = *o.MaxRetryDelay
	}
	if o.DependsOnPast != nil {
		args.DependsOnPast = *o.DependsOnPast
	}
	if o.ExecutionTimeout != nil {
		args.ExecutionTimeout = *o.ExecutionTimeout
	}
	if o.TriggerRule != nil {
		args.TriggerRule = *o.TriggerRule
	}
	if args.TriggerRule == "" {
		args.TriggerRule = AllSuccess
	}
	return args
}

// RetryDelayFor returns the wait before the try following tryNumber.
func (a TaskArgs) RetryDelayFor(tryNumber int) time.Duration {
	delay := a.RetryDelay
	if !a.RetryExponentialBackoff {
		return delay
	}
	for i := 1; i < tryNumber; i++ {
		delay *= 2
		if a.MaxRetryDelay > 0 && delay >= a.MaxRetryDelay {
			return a.MaxRetryDelay
		}
	}
	if a.MaxRetryDelay > 0 && delay > a.MaxRetryDelay {
		return a.MaxRetryDelay
	}
	return delay
}
