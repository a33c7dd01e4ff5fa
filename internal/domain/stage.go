package domain

import "fmt"

// Stage is one step in the forward-only sales-to-delivery pipeline.
type Stage string

const (
	StagePreSales    Stage = "Pre-Sales"
	StageQuotation   Stage = "Quotation"
	StageConfirmed   Stage = "Confirmed"
	StageDevelopment Stage = "Development"
	StageCompleted   Stage = "Completed"
)

// Stages lists all pipeline stages in order. Position is the total order:
// a transition is forward iff the target index is not lower than the source.
var Stages = []Stage{StagePreSales, StageQuotation, StageConfirmed, StageDevelopment, StageCompleted}

// Index returns the stage's position in the pipeline, or -1 for unknown names.
func (s Stage) Index() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Known reports whether s is one of the five pipeline stages.
func (s Stage) Known() bool {
	return s.Index() >= 0
}

// IsForward reports whether moving from one stage to another keeps the
// pipeline moving forward. Staying on the same stage counts as forward.
func IsForward(from, to Stage) bool {
	return to.Index() >= from.Index()
}

// ParseStage validates a stage name.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if !s.Known() {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}
