package domain_test

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"salesline/internal/domain"
)

func TestStageOrdering(t *testing.T) {
	if domain.StagePreSales.Index() != 0 || domain.StageCompleted.Index() != 4 {
		t.Fatalf("stage indexes: %d %d", domain.StagePreSales.Index(), domain.StageCompleted.Index())
	}
	if domain.Stage("Shipping").Index() != -1 {
		t.Fatalf("unknown stage should index -1")
	}
	if !domain.IsForward(domain.StageQuotation, domain.StageQuotation) {
		t.Fatalf("same stage counts as forward")
	}
	if domain.IsForward(domain.StageDevelopment, domain.StageConfirmed) {
		t.Fatalf("backward move reported forward")
	}
	if _, err := domain.ParseStage("Quotation"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := domain.ParseStage("quotation"); err == nil {
		t.Fatalf("stage names are case sensitive")
	}
}

func TestAvailableNextStages(t *testing.T) {
	p := domain.Project{CurrentStage: domain.StageConfirmed}
	want := []domain.Stage{domain.StageConfirmed, domain.StageDevelopment, domain.StageCompleted}
	if got := p.AvailableNextStages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("available stages = %v", got)
	}
	done := domain.Project{CurrentStage: domain.StageCompleted}
	if got := done.AvailableNextStages(); !reflect.DeepEqual(got, []domain.Stage{domain.StageCompleted}) {
		t.Fatalf("completed project stages = %v", got)
	}
}

func TestLedgerValueSemantics(t *testing.T) {
	base := domain.LedgerOf([]domain.SerialNumber{{SerialNumber: "SN-1"}})
	grown := base.Append(domain.SerialNumber{SerialNumber: "SN-2"})
	if base.Len() != 1 || grown.Len() != 2 {
		t.Fatalf("append mutated original: base=%d grown=%d", base.Len(), grown.Len())
	}
	all := grown.All()
	all[0].SerialNumber = "tampered"
	latest, ok := grown.Latest()
	if !ok || latest.SerialNumber != "SN-2" {
		t.Fatalf("latest = %+v ok=%v", latest, ok)
	}
	if first := grown.All()[0]; first.SerialNumber != "SN-1" {
		t.Fatalf("All leaked the backing slice")
	}
}

func TestTotalAdvance(t *testing.T) {
	p := domain.Project{}
	if !p.TotalAdvance().Equal(decimal.Zero) {
		t.Fatalf("empty ledger total = %s", p.TotalAdvance())
	}
	p.Advances = domain.LedgerOf([]domain.AdvancePayment{
		{Amount: decimal.RequireFromString("0.10")},
		{Amount: decimal.RequireFromString("0.20")},
	})
	if !p.TotalAdvance().Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("total = %s", p.TotalAdvance())
	}
}

func TestLatestStatusTieBreak(t *testing.T) {
	p := domain.Project{}
	if _, ok := p.LatestStatus(); ok {
		t.Fatalf("empty ledger reported a status")
	}
	ts := "2025-03-10T09:00:00Z"
	p.StatusUpdates = domain.LedgerOf([]domain.StatusUpdate{
		{StatusCode: "InProgress", CreatedDate: ts},
		{StatusCode: "TestingStarted", CreatedDate: ts},
	})
	latest, ok := p.LatestStatus()
	if !ok || latest.StatusCode != "TestingStarted" {
		t.Fatalf("tie should resolve to the later entry, got %+v", latest)
	}
}

func TestNeedsSerialNumber(t *testing.T) {
	p := domain.Project{CurrentStage: domain.StageConfirmed}
	if !p.NeedsSerialNumber() {
		t.Fatalf("confirmed without serials should need one")
	}
	p.Serials = domain.LedgerOf([]domain.SerialNumber{{SerialNumber: "SN-1"}})
	if p.NeedsSerialNumber() {
		t.Fatalf("flag should clear once a serial exists")
	}
	q := domain.Project{CurrentStage: domain.StageQuotation}
	if q.NeedsSerialNumber() {
		t.Fatalf("flag applies only at Confirmed")
	}
}
