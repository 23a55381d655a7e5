package core

import (
	"time"
)

// maxFailedRows bounds the skipped rows kept per entity summary.
const maxFailedRows = 100

// Phase is the state of one entity type within a run.
type Phase string

const (
	PhasePending     Phase = "PENDING"
	PhaseIngesting   Phase = "INGESTING"
	PhaseNormalizing Phase = "NORMALIZING"
	PhaseResolving   Phase = "RESOLVING"
	PhaseMerging     Phase = "MERGING"
	PhaseUpserting   Phase = "UPSERTING"
	PhaseDone        Phase = "DONE"
	PhaseFailed      Phase = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// EntitySummary is the outcome of one entity type. It is produced for every
// requested type, including those never started because an earlier one
// failed.
type EntitySummary struct {
	Entity EntityType `json:"entity"`
	Phase  Phase      `json:"phase"`

	Read       int `json:"read"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Unchanged  int `json:"unchanged"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Merged     int `json:"merged"`
	Errored    int `json:"errored"` // rows with at least one uncoercible cell
	Collapsed  int `json:"collapsed,omitempty"`

	SkipReasons map[SkipReason]int `json:"skip_reasons,omitempty"`
	FailedRows  []InvalidRowError  `json:"failed_rows,omitempty"`

	Note     string        `json:"note,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewEntitySummary returns a pending summary.
func NewEntitySummary(t EntityType) *EntitySummary {
	return &EntitySummary{Entity: t, Phase: PhasePending, SkipReasons: make(map[SkipReason]int)}
}

// Skip records one skipped row.
func (s *EntitySummary) Skip(row InvalidRowError) {
	s.Skipped++
	s.SkipReasons[row.Reason]++
	if len(s.FailedRows) < maxFailedRows {
		s.FailedRows = append(s.FailedRows, row)
	}
}

// skipConflicts records one aggregated entry standing for n skipped rows.
func (s *EntitySummary) skipConflicts(row InvalidRowError, n int) {
	s.Skipped += n
	s.SkipReasons[row.Reason] += n
	if len(s.FailedRows) < maxFailedRows {
		s.FailedRows = append(s.FailedRows, row)
	}
}

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunReport summarizes one import run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Scheme     KeyScheme        `json:"scheme"`
	DryRun     bool             `json:"dry_run"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Entities   []*EntitySummary `json:"entities"`
	Error      string           `json:"error,omitempty"`
}

// Summary returns the summary of t, or nil.
func (r *RunReport) Summary(t EntityType) *EntitySummary {
	for _, s := range r.Entities {
		if s.Entity == t {
			return s
		}
	}
	return nil
}

// Totals sums created and updated rows over all entities.
func (r *RunReport) Totals() (created, updated int) {
	for _, s := range r.Entities {
		created += s.Created
		updated += s.Updated
	}
	return created, updated
}
