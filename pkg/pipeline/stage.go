package pipeline

import "fmt"

// Stage identifies a step of a pipeline run.
type Stage string

const (
	StageReceived            Stage = "RECEIVED"
	StageSchemaChecked       Stage = "SCHEMA_CHECKED"
	StageTransformed         Stage = "TRANSFORMED"
	StageSemanticallyChecked Stage = "SEMANTICALLY_CHECKED"
	StageResponded           Stage = "RESPONDED"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageReceived, StageSchemaChecked, StageTransformed, StageSemanticallyChecked, StageResponded}

// StageError reports the stage a run terminated in. Err carries the categorised cause
// so errors.Is works against the domain sentinels.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
