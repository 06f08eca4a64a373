// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package task tracks resumable batch jobs. A Record lists every item a job
// must cover; the Engine walks those items through a caller-supplied
// Processor and persists each outcome through a Store, so a killed or
// cancelled job can later resume with only the items that did not succeed.
package task

import "time"

// Type selects which processing callback the caller binds at start time.
// The engine itself only routes on it.
type Type string

const (
	TypePDFToImage      Type = "pdf_to_image"
	TypeImageToMarkdown Type = "image_to_markdown"
	TypeFullPipeline    Type = "full_pipeline"
)

// Types lists the known task types in display order.
var Types = []Type{TypePDFToImage, TypeImageToMarkdown, TypeFullPipeline}

// Valid reports whether t is one of the known task types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the task-level state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusPartiallyFailed Status = "partially_failed"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
)

// ItemStatus is the state of a single work item.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// Item is one unit of work inside a task, keyed by its source path.
type Item struct {
	// Identity is the source path of the item. Unique within a task.
	Identity string `json:"identity" yaml:"identity"`

	Status ItemStatus `json:"status" yaml:"status"`

	// Attempts counts processing attempts across every run of the task.
	Attempts int `json:"attempts" yaml:"attempts"`

	// LastError holds the message of the most recent failed attempt.
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	// Output is where the processing callback wrote its result, if it said.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// done reports whether the item needs no further processing on resume.
func (it Item) done() bool {
	return it.Status == ItemSuccess || it.Status == ItemSkipped
}

// Record is the durable state of one batch job. The Store copy is the only
// authoritative one.
type Record struct {
	ID         string `json:"id" yaml:"id"`
	Type       Type   `json:"task_type" yaml:"task_type"`
	InputPath  string `json:"input_path" yaml:"input_path"`
	OutputPath string `json:"output_path" yaml:"output_path"`
	Status     Status `json:"status" yaml:"status"`
	Items      []Item `json:"items" yaml:"items"`

	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`

	// ErrorSummary describes the fatal error behind a failed status.
	ErrorSummary string `json:"error_summary,omitempty" yaml:"error_summary,omitempty"`
}

// Counts tallies items by status.
type Counts struct {
	Total     int `json:"total" yaml:"total"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Pending   int `json:"pending" yaml:"pending"`
}

// Progress returns the fraction of items that need no further work.
func (c Counts) Progress() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Succeeded+c.Skipped) / float64(c.Total)
}

// Counts tallies the record's items by status.
func (r *Record) Counts() Counts {
	c := Counts{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case ItemSuccess:
			c.Succeeded++
		case ItemFailed:
			c.Failed++
		case ItemSkipped:
			c.Skipped++
		default:
			c.Pending++
		}
	}
	return c
}

// FailedItems returns the items currently in the failed state, in order.
func (r *Record) FailedItems() []Item {
	var failed []Item
	for _, it := range r.Items {
		if it.Status == ItemFailed {
			failed = append(failed, it)
		}
	}
	return failed
}

// Summary is the listing view of a task: everything but per-item detail.
type Summary struct {
	ID         string     `json:"id" yaml:"id"`
	Type       Type       `json:"task_type" yaml:"task_type"`
	Status     Status     `json:"status" yaml:"status"`
	InputPath  string     `json:"input_path" yaml:"input_path"`
	OutputPath string     `json:"output_path" yaml:"output_path"`
	Counts     Counts     `json:"counts" yaml:"counts"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Summary returns the listing view of the record.
func (r *Record) Summary() Summary {
	return Summary{
		ID:         r.ID,
		Type:       r.Type,
		Status:     r.Status,
		InputPath:  r.InputPath,
		OutputPath: r.OutputPath,
		Counts:     r.Counts(),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Derive computes the status a finished, uncancelled pass leaves behind.
// Any failed item yields partially_failed; otherwise the task is completed
// once nothing is pending.
func Derive(c Counts) Status {
	switch {
	case c.Failed > 0:
		return StatusPartiallyFailed
	case c.Pending == 0:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// reset returns every item to pending with no attempts, for a full rerun.
func (r *Record) reset() {
	for i := range r.Items {
		r.Items[i] = Item{Identity: r.Items[i].Identity, Status: ItemPending}
	}
}

// clone returns a deep copy so persisted snapshots never alias live state.
func (r *Record) clone() *Record {
	cp := *r
	cp.Items = make([]Item, len(r.Items))
	copy(cp.Items, r.Items)
	return &cp
}
