package rules_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"salesline/internal/domain"
	"salesline/internal/rules"
)

// Every check must reject through a *RejectionError that errors.As can
// unwrap, so the server maps it to 422 with the reason code instead of
// treating it as an internal failure.
func TestRejectionsMatchAsPointer(t *testing.T) {
	confirmed := domain.Project{CurrentStage: domain.StageConfirmed}
	cases := []struct {
		name string
		err  error
		want rules.Reason
	}{
		{"stage regression", rules.CheckStageChange(confirmed, domain.StageQuotation), rules.StageRegression},
		{"zero advance", rules.CheckAdvance(decimal.Zero), rules.InvalidAmount},
		{"blank serial", rules.CheckSerial("  "), rules.EmptySerial},
		{"testing without artifact", rules.CheckStatusUpdate("TestingStarted", "notes", "", false), rules.MissingCompiledArtifact},
		{"blank notes", rules.CheckStatusUpdate("InProgress", "", "", false), rules.MissingNotes},
	}
	for _, tc := range cases {
		var reject *rules.RejectionError
		if !errors.As(tc.err, &reject) {
			t.Fatalf("%s: error %v does not match *RejectionError", tc.name, tc.err)
		}
		if reject.Reason != tc.want {
			t.Fatalf("%s: reason = %q, want %q", tc.name, reject.Reason, tc.want)
		}
		if reject.Error() == "" {
			t.Fatalf("%s: empty message", tc.name)
		}
	}
}

func TestForwardAndSameStageAccepted(t *testing.T) {
	p := domain.Project{CurrentStage: domain.StageQuotation}
	if err := rules.CheckStageChange(p, domain.StageConfirmed); err != nil {
		t.Fatalf("forward move rejected: %v", err)
	}
	if err := rules.CheckStageChange(p, domain.StageQuotation); err != nil {
		t.Fatalf("same stage rejected: %v", err)
	}
	if rules.StageChanged(p, domain.StageQuotation) {
		t.Fatalf("same stage reported as changed")
	}
}
