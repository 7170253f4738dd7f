// ABOUTME: Per-pipeline outcome of a run and its console rendering
// ABOUTME: Aggregates every failure with multierr instead of keeping only the first
package migrate

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"github.com/harper/brain-migrate/internal/models"
)

// Actions a report can describe
const (
	ActionTransfer = "transfer"
	ActionDump     = "dump"
)

// Result is the outcome of one pipeline
type Result struct {
	Action   string
	Kind     Kind
	Pipeline string
	Summary  models.Summary
	Err      error
	Duration time.Duration
}

// Report collects the results of one action, in pipeline order
type Report struct {
	RunID   string
	Action  string
	Results []Result
}

func newReport(runID, action string, n int) *Report {
	return &Report{RunID: runID, Action: action, Results: make([]Result, n)}
}

// Merge appends the results of another report. Each result keeps its own
// action, so a dump followed by a transfer still prints transfer summaries.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Results = append(r.Results, other.Results...)
}

// Failed returns the results that carry an error
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// OK reports whether every pipeline succeeded
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

// Err combines every pipeline failure, or returns nil
func (r *Report) Err() error {
	errs := make([]error, len(r.Results))
	for i, res := range r.Results {
		errs[i] = res.Err
	}
	return combine(errs)
}

// Total sums the summaries of all successful transfers
func (r *Report) Total() models.Summary {
	var total models.Summary
	for _, res := range r.Results {
		if res.Err == nil && res.Action == ActionTransfer {
			total = total.Add(res.Summary)
		}
	}
	return total
}

// Write prints one line per pipeline followed by the overall outcome
func (r *Report) Write(w io.Writer) error {
	for _, res := range r.Results {
		var err error
		switch {
		case res.Err != nil:
			_, err = fmt.Fprintf(w, "FAIL %s/%s: %v\n", res.Kind, res.Pipeline, res.Err)
		case res.Action == ActionTransfer:
			_, err = fmt.Fprintf(w, "ok   %s/%s: %s (%s)\n", res.Kind, res.Pipeline, res.Summary, res.Duration.Round(time.Millisecond))
		default:
			_, err = fmt.Fprintf(w, "ok   %s/%s\n", res.Kind, res.Pipeline)
		}
		if err != nil {
			return err
		}
	}

	if r.OK() {
		if !r.transferred() {
			_, err := fmt.Fprintln(w, "Completed successfully.")
			return err
		}
		_, err := fmt.Fprintf(w, "Completed successfully. Wrote %s.\n", r.Total())
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d pipelines failed (run %s)\n", len(r.Failed()), len(r.Results), r.RunID)
	return err
}

func (r *Report) transferred() bool {
	for _, res := range r.Results {
		if res.Action == ActionTransfer {
			return true
		}
	}
	return false
}

func combine(errs []error) error {
	return multierr.Combine(errs...)
}
