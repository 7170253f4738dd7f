// ABOUTME: Pipeline failure context: which kind, which pipeline, which stage
// ABOUTME: Wraps the underlying sentinel so errors.Is keeps working
package migrate

import (
	"errors"
	"fmt"
)

// Stage names the step of a pipeline that failed
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageExtract Stage = "extract"
	StageLoad    Stage = "load"
	StageDump    Stage = "dump"
)

// ErrNoSink is returned when a transfer is attempted without a relational sink
var ErrNoSink = errors.New("no relational sink configured")

// ErrNoSource is returned when a key-value kind is requested without a source store
var ErrNoSource = errors.New("no key-value source configured")

// PipelineError records where a pipeline failed
type PipelineError struct {
	Kind     Kind
	Pipeline string
	Stage    Stage
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s/%s %s: %v", e.Kind, e.Pipeline, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
