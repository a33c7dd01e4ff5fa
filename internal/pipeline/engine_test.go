package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salesline/internal/config"
	"salesline/internal/db"
	"salesline/internal/domain"
	"salesline/internal/migrate"
	"salesline/internal/pipeline"
	"salesline/internal/repo"
	"salesline/internal/rules"
)

type testEnv struct {
	Engine pipeline.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := pipeline.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func createProject(t *testing.T, env testEnv) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, pipeline.ProjectCreateOptions{
		PartyName:          "Acme Industries",
		ProjectName:        "Weighbridge Automation",
		ProjectValue:       decimal.NewFromInt(250000),
		ScopeOfDevelopment: "Initial scope",
		ActorID:            "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestCreateProjectNumbering(t *testing.T) {
	env := newTestEnv(t)
	first := createProject(t, env)
	if first.ProjectNo != "2025-MAR-0001" {
		t.Fatalf("project number = %q", first.ProjectNo)
	}
	second := createProject(t, env)
	if second.ProjectNo != "2025-MAR-0002" {
		t.Fatalf("second project number = %q", second.ProjectNo)
	}
	if first.CurrentStage != domain.StagePreSales {
		t.Fatalf("new project stage = %q", first.CurrentStage)
	}
	if first.ScopeHistory.Len() != 1 || first.StageHistory.Len() != 1 {
		t.Fatalf("expected seeded ledgers, scope=%d stage=%d", first.ScopeHistory.Len(), first.StageHistory.Len())
	}
}

func TestPipelineLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	no := p.ProjectNo

	stage := string(domain.StageQuotation)
	p, err := env.Engine.UpdateProject(env.Ctx, pipeline.ProjectUpdateOptions{ProjectNo: no, Stage: &stage, ActorID: "tester"})
	if err != nil || p.CurrentStage != domain.StageQuotation {
		t.Fatalf("to Quotation: %v (stage %q)", err, p.CurrentStage)
	}

	if _, err := env.Engine.RecordAdvance(env.Ctx, pipeline.AdvanceOptions{ProjectNo: no, Amount: decimal.NewFromInt(50000), ActorID: "tester"}); err != nil {
		t.Fatalf("record advance: %v", err)
	}

	stage = string(domain.StageConfirmed)
	if _, err := env.Engine.UpdateProject(env.Ctx, pipeline.ProjectUpdateOptions{ProjectNo: no, Stage: &stage, ActorID: "tester"}); err != nil {
		t.Fatalf("to Confirmed: %v", err)
	}

	agg, err := env.Engine.GetProject(env.Ctx, no)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if !agg.NeedsSerialNumber() {
		t.Fatalf("confirmed project without serials should need a serial number")
	}

	if _, err := env.Engine.RecordSerial(env.Ctx, pipeline.SerialOptions{ProjectNo: no, SerialNumber: "SN-001", ActorID: "tester"}); err != nil {
		t.Fatalf("record serial: %v", err)
	}
	agg, _ = env.Engine.GetProject(env.Ctx, no)
	if agg.NeedsSerialNumber() {
		t.Fatalf("serial recorded, flag should clear")
	}

	// backward move must be rejected and leave everything untouched
	stage = string(domain.StagePreSales)
	_, err = env.Engine.UpdateProject(env.Ctx, pipeline.ProjectUpdateOptions{ProjectNo: no, Stage: &stage, ActorID: "tester"})
	var reject *rules.RejectionError
	if !errors.As(err, &reject) || reject.Reason != rules.StageRegression {
		t.Fatalf("expected stage regression rejection, got %v", err)
	}
	after, _ := env.Engine.GetProject(env.Ctx, no)
	if after.CurrentStage != domain.StageConfirmed {
		t.Fatalf("stage mutated after rejection: %q", after.CurrentStage)
	}
	if after.StageHistory.Len() != agg.StageHistory.Len() {
		t.Fatalf("stage history grew after rejection")
	}
}

func TestScopeVersioning(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	no := p.ProjectNo

	revised := "Revised scope"
	p, err := env.Engine.UpdateProject(env.Ctx, pipeline.ProjectUpdateOptions{ProjectNo: no, Scope: &revised, ActorID: "tester"})
	if err != nil {
		t.Fatalf("revise scope: %v", err)
	}
	if got := p.ScopeHistory.Len(); got != 2 {
		t.Fatalf("scope versions = %d, want 2", got)
	}
	latest, _ := p.ScopeHistory.Latest()
	if latest.Version != 2 || latest.Scope != revised {
		t.Fatalf("latest scope = v%d %q", latest.Version, latest.Scope)
	}

	// resubmitting identical scope mints no version
	p, err = env.Engine.UpdateProject(env.Ctx, pipeline.ProjectUpdateOptions{ProjectNo: no, Scope: &revised, ActorID: "tester"})
	if err != nil {
		t.Fatalf("resubmit scope: %v", err)
	}
	if got := p.ScopeHistory.Len(); got != 2 {
		t.Fatalf("identical scope minted version, len = %d", got)
	}

	// versions stay dense 1..N
	agg, _ := env.Engine.GetProject(env.Ctx, no)
	for i, v := range agg.ScopeHistory.All() {
		if v.Version != i+1 {
			t.Fatalf("version gap at index %d: got %d", i, v.Version)
		}
	}
}

func TestSameStageAppendsNoHistory(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	stage := string(domain.StagePreSales)
	p, err := env.Engine.UpdateProject(env.Ctx, pipeline.ProjectUpdateOptions{ProjectNo: p.ProjectNo, Stage: &stage, ActorID: "tester"})
	if err != nil {
		t.Fatalf("same stage update: %v", err)
	}
	if p.StageHistory.Len() != 1 {
		t.Fatalf("same stage appended history, len = %d", p.StageHistory.Len())
	}
}

func TestAdvanceTotals(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	for _, amount := range []int64{100, 250, 50} {
		if _, err := env.Engine.RecordAdvance(env.Ctx, pipeline.AdvanceOptions{ProjectNo: p.ProjectNo, Amount: decimal.NewFromInt(amount), ActorID: "tester"}); err != nil {
			t.Fatalf("record advance %d: %v", amount, err)
		}
	}
	agg, _ := env.Engine.GetProject(env.Ctx, p.ProjectNo)
	if got := agg.TotalAdvance(); !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("total advance = %s, want 400", got)
	}

	_, err := env.Engine.RecordAdvance(env.Ctx, pipeline.AdvanceOptions{ProjectNo: p.ProjectNo, Amount: decimal.Zero, ActorID: "tester"})
	var reject *rules.RejectionError
	if !errors.As(err, &reject) || reject.Reason != rules.InvalidAmount {
		t.Fatalf("zero amount: expected invalid amount rejection, got %v", err)
	}
	_, err = env.Engine.RecordAdvance(env.Ctx, pipeline.AdvanceOptions{ProjectNo: p.ProjectNo, Amount: decimal.NewFromInt(-5), ActorID: "tester"})
	if !errors.As(err, &reject) || reject.Reason != rules.InvalidAmount {
		t.Fatalf("negative amount: expected invalid amount rejection, got %v", err)
	}
}

func TestSerialValidation(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	_, err := env.Engine.RecordSerial(env.Ctx, pipeline.SerialOptions{ProjectNo: p.ProjectNo, SerialNumber: "   ", ActorID: "tester"})
	var reject *rules.RejectionError
	if !errors.As(err, &reject) || reject.Reason != rules.EmptySerial {
		t.Fatalf("blank serial: expected rejection, got %v", err)
	}
	// duplicates are allowed, the ledger just grows
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.RecordSerial(env.Ctx, pipeline.SerialOptions{ProjectNo: p.ProjectNo, SerialNumber: "SN-7", ActorID: "tester"}); err != nil {
			t.Fatalf("duplicate serial %d: %v", i, err)
		}
	}
	agg, _ := env.Engine.GetProject(env.Ctx, p.ProjectNo)
	if agg.Serials.Len() != 2 {
		t.Fatalf("serials len = %d", agg.Serials.Len())
	}
}

func TestStatusUpdateRules(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	no := p.ProjectNo

	var reject *rules.RejectionError
	_, err := env.Engine.RecordStatus(env.Ctx, pipeline.StatusOptions{ProjectNo: no, StatusCode: "InProgress", ActorID: "tester"})
	if !errors.As(err, &reject) || reject.Reason != rules.MissingNotes {
		t.Fatalf("missing notes: got %v", err)
	}

	_, err = env.Engine.RecordStatus(env.Ctx, pipeline.StatusOptions{ProjectNo: no, StatusCode: "TestingStarted", Notes: "starting", ActorID: "tester"})
	if !errors.As(err, &reject) || reject.Reason != rules.MissingCompiledArtifact {
		t.Fatalf("TestingStarted without artifact: got %v", err)
	}

	u, err := env.Engine.RecordStatus(env.Ctx, pipeline.StatusOptions{
		ProjectNo: no, StatusCode: "TestingStarted", Notes: "starting",
		CompiledFileURL: "https://files.example/build-1.zip", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("TestingStarted with artifact: %v", err)
	}
	if u.CompiledFileURL == "" {
		t.Fatalf("artifact not kept")
	}

	// unknown codes pass with notes only
	if _, err := env.Engine.RecordStatus(env.Ctx, pipeline.StatusOptions{ProjectNo: no, StatusCode: "OnHold", Notes: "waiting on parts", ActorID: "tester"}); err != nil {
		t.Fatalf("open status code: %v", err)
	}

	agg, _ := env.Engine.GetProject(env.Ctx, no)
	latest, ok := agg.LatestStatus()
	if !ok || latest.StatusCode != "OnHold" {
		t.Fatalf("latest status = %+v ok=%v", latest, ok)
	}
}

func TestSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	if err := env.Engine.DeleteProject(env.Ctx, p.ProjectNo, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, p.ProjectNo, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, "2099-JAN-0001", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleting a missing project should report not found, got %v", err)
	}
	// history stays readable
	agg, err := env.Engine.GetProject(env.Ctx, p.ProjectNo)
	if err != nil || agg.Status != domain.ProjectStatusDeleted {
		t.Fatalf("deleted project read: %v status=%q", err, agg.Status)
	}
	// mutations are refused
	if _, err := env.Engine.RecordAdvance(env.Ctx, pipeline.AdvanceOptions{ProjectNo: p.ProjectNo, Amount: decimal.NewFromInt(10), ActorID: "tester"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("mutation on deleted project: %v", err)
	}
	// and default listings skip it
	list, err := env.Engine.ListProjects(env.Ctx, repo.ProjectFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, item := range list {
		if item.ProjectNo == p.ProjectNo {
			t.Fatalf("deleted project still listed")
		}
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env)
	stage := string(domain.StageQuotation)
	if _, err := env.Engine.UpdateProject(env.Ctx, pipeline.ProjectUpdateOptions{ProjectNo: p.ProjectNo, Stage: &stage, ActorID: "tester"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	evts, err := env.Engine.Repo.EventsAfter(env.Ctx, 50, 0, p.ProjectNo)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range evts {
		seen[e.Type] = true
	}
	for _, want := range []string{"project.created", "project.stage.changed", "project.updated"} {
		if !seen[want] {
			t.Fatalf("missing event %s, got %v", want, seen)
		}
	}
}
