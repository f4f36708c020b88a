package contract

import (
	"context"
	"time"
)

// Job is a production order submitted for scheduling.
type Job struct {
	ID       string    `json:"id"`
	Product  string    `json:"product"`
	Quantity int       `json:"quantity"`
	Due      time.Time `json:"due"`
}

// Slot is the line time allocated to a job.
type Slot struct {
	JobID string    `json:"jobId"`
	Line  string    `json:"line"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Scheduler allocates production jobs to lines.
type Scheduler interface {
	ScheduleJob(ctx context.Context, job Job) (Slot, error)
	CancelJob(ctx context.Context, jobID string) error
	// Capacity returns the free fraction (0-1) of a line.
	Capacity(ctx context.Context, line string) (float64, error)
}

// LineStatus is the live state of a production line.
type LineStatus struct {
	Line      string    `json:"line"`
	Running   bool      `json:"running"`
	Output    int       `json:"output"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ShopFloor exposes production line state.
type ShopFloor interface {
	LineStatus(ctx context.Context, line string) (LineStatus, error)
	ReportOutput(ctx context.Context, line string, units int) error
}

// Inspection is the result of a lot inspection.
type Inspection struct {
	Lot     string `json:"lot"`
	Passed  bool   `json:"passed"`
	Defects int    `json:"defects"`
}

// QualityControl inspects production lots.
type QualityControl interface {
	Inspect(ctx context.Context, lot string) (Inspection, error)
	DefectRate(ctx context.Context, product string) (float64, error)
}
