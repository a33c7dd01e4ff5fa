// Package rules is the single source of truth for whether a proposed project
// mutation is legal. Checks are pure functions over the aggregate passed in;
// persistence and event logging belong to the pipeline engine.
package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"salesline/internal/domain"
)

// Reason identifies why a mutation was rejected.
type Reason string

const (
	StageRegression         Reason = "stage_regression"
	InvalidAmount           Reason = "invalid_amount"
	EmptySerial             Reason = "empty_serial"
	MissingCompiledArtifact Reason = "missing_compiled_artifact"
	MissingNotes            Reason = "missing_notes"
)

// StatusTestingStarted is the one status code with a cross-field requirement:
// it needs a compiled-file reference attached.
const StatusTestingStarted = "TestingStarted"

// RejectionError is a recoverable validation failure. Callers match it with
// errors.As and render a message from the reason code.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e RejectionError) Error() string {
	return e.Message
}

func reject(reason Reason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// CheckStageChange rejects any move to an earlier stage. Stages never move
// backward; there is no override path. Staying on the current stage is legal.
func CheckStageChange(p domain.Project, requested domain.Stage) error {
	if requested.Index() < p.CurrentStage.Index() {
		return reject(StageRegression, "cannot revert stage %s to %s; stages only move forward", p.CurrentStage, requested)
	}
	return nil
}

// StageChanged reports whether the requested stage differs from the current
// one. Same-stage submissions must not append a duplicate history entry.
func StageChanged(p domain.Project, requested domain.Stage) bool {
	return requested != p.CurrentStage
}

// ScopeChanged reports whether the submitted scope text differs from the
// project's current scope. Identical resubmission is a versioning no-op.
func ScopeChanged(p domain.Project, scope string) bool {
	return scope != p.ScopeOfDevelopment
}

// NextScopeVersion is 1 plus the number of existing versions, so the first
// entry is version 1 and the sequence stays gapless.
func NextScopeVersion(p domain.Project) int {
	return p.ScopeHistory.Len() + 1
}

// CheckAdvance rejects non-positive amounts. There is no upper bound against
// the project value; over-payment is accepted.
func CheckAdvance(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return reject(InvalidAmount, "advance amount must be positive, got %s", amount)
	}
	return nil
}

// CheckSerial rejects blank serial numbers. Duplicates across the ledger are
// not detected here.
func CheckSerial(serial string) error {
	if strings.TrimSpace(serial) == "" {
		return reject(EmptySerial, "serial number must not be blank")
	}
	return nil
}

// CheckStatusUpdate validates a development status note. requiresArtifact is
// true for TestingStarted and for any status the service config marks as
// needing a compiled build.
func CheckStatusUpdate(statusCode, notes, compiledFileURL string, requiresArtifact bool) error {
	if statusCode == StatusTestingStarted {
		requiresArtifact = true
	}
	if requiresArtifact && strings.TrimSpace(compiledFileURL) == "" {
		return reject(MissingCompiledArtifact, "status %s requires a compiled file upload", statusCode)
	}
	if strings.TrimSpace(notes) == "" {
		return reject(MissingNotes, "status notes must not be blank")
	}
	return nil
}
