package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesline/internal/config"
	"salesline/internal/domain"
	"salesline/internal/events"
	"salesline/internal/repo"
	"salesline/internal/rules"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ProjectCreateOptions are parameters for registering a new project.
type ProjectCreateOptions struct {
	PartyName          string
	ProjectName        string
	ContactPerson      string
	MobileNumber       string
	EmailID            string
	AgentName          string
	ProjectValue       decimal.Decimal
	ScopeOfDevelopment string
	AssignedTo         string
	AttachmentURLs     []string
	ActorID            string
}

// CreateProject registers a project at the Pre-Sales stage, assigns its
// project number and seeds scope version 1 and the first stage entry.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.PartyName) == "" {
		return domain.Project{}, errors.New("party name is required")
	}
	if strings.TrimSpace(opts.ProjectName) == "" {
		return domain.Project{}, errors.New("project name is required")
	}
	if strings.TrimSpace(opts.ScopeOfDevelopment) == "" {
		return domain.Project{}, errors.New("scope of development is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	projectNo, err := e.Repo.NextProjectNumberTx(ctx, tx, e.now())
	if err != nil {
		return domain.Project{}, fmt.Errorf("assign project number: %w", err)
	}
	p := domain.Project{
		ProjectNo:          projectNo,
		PartyName:          opts.PartyName,
		ProjectName:        opts.ProjectName,
		ContactPerson:      opts.ContactPerson,
		MobileNumber:       opts.MobileNumber,
		EmailID:            opts.EmailID,
		AgentName:          opts.AgentName,
		ProjectValue:       opts.ProjectValue,
		ScopeOfDevelopment: opts.ScopeOfDevelopment,
		CurrentStage:       domain.StagePreSales,
		AttachmentURLs:     opts.AttachmentURLs,
		Status:             domain.ProjectStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if opts.AssignedTo != "" {
		p.AssignedTo = &opts.AssignedTo
	}
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	scope := domain.ScopeVersion{Version: 1, Scope: opts.ScopeOfDevelopment, ModifiedBy: opts.ActorID, ModifiedDate: now}
	if err := e.Repo.AppendScopeVersionTx(ctx, tx, projectNo, scope); err != nil {
		return domain.Project{}, fmt.Errorf("seed scope version: %w", err)
	}
	entry := domain.StageEntry{Stage: domain.StagePreSales, ChangedBy: opts.ActorID, ChangedDate: now}
	if err := e.Repo.AppendStageEntryTx(ctx, tx, projectNo, entry); err != nil {
		return domain.Project{}, fmt.Errorf("seed stage history: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectCreated, projectNo, "project", projectNo, opts.ActorID, events.EventPayload{
		"party_name":   p.PartyName,
		"project_name": p.ProjectName,
		"stage":        string(p.CurrentStage),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.ScopeHistory = domain.LedgerOf([]domain.ScopeVersion{scope})
	p.StageHistory = domain.LedgerOf([]domain.StageEntry{entry})
	return p, nil
}

// GetProject returns the full aggregate with all ledgers loaded.
func (e Engine) GetProject(ctx context.Context, projectNo string) (domain.Project, error) {
	return e.Repo.GetAggregate(ctx, projectNo)
}

func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, f)
}

// getActive loads the aggregate and treats soft-deleted projects as absent
// for the purpose of mutations.
func (e Engine) getActive(ctx context.Context, projectNo string) (domain.Project, error) {
	p, err := e.Repo.GetAggregate(ctx, projectNo)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status == domain.ProjectStatusDeleted {
		return domain.Project{}, repo.ErrNotFound
	}
	return p, nil
}

// ProjectUpdateOptions carries a bundled project mutation. Nil fields are
// left untouched; Stage and Scope drive their ledgers when they change.
type ProjectUpdateOptions struct {
	ProjectNo      string
	PartyName      *string
	ProjectName    *string
	ContactPerson  *string
	MobileNumber   *string
	EmailID        *string
	AgentName      *string
	ProjectValue   *decimal.Decimal
	Scope          *string
	Stage          *string
	StageRemarks   string
	AssignedTo     *string
	AttachmentURLs []string
	ActorID        string
}

// UpdateProject applies a bundled mutation: scalar edits, an optional stage
// advance and an optional scope revision, atomically. A stage equal to the
// current one appends no history, an unchanged scope mints no version, and a
// backward stage is rejected with the whole mutation rolled back.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.getActive(ctx, opts.ProjectNo)
	if err != nil {
		return domain.Project{}, err
	}

	var stageEntry *domain.StageEntry
	if opts.Stage != nil {
		requested, err := domain.ParseStage(*opts.Stage)
		if err != nil {
			return domain.Project{}, err
		}
		if err := rules.CheckStageChange(p, requested); err != nil {
			return domain.Project{}, err
		}
		if rules.StageChanged(p, requested) {
			stageEntry = &domain.StageEntry{Stage: requested, ChangedBy: opts.ActorID, Remarks: opts.StageRemarks}
			p.CurrentStage = requested
		}
	}

	var scopeVersion *domain.ScopeVersion
	if opts.Scope != nil && rules.ScopeChanged(p, *opts.Scope) {
		scopeVersion = &domain.ScopeVersion{Version: rules.NextScopeVersion(p), Scope: *opts.Scope, ModifiedBy: opts.ActorID}
		p.ScopeOfDevelopment = *opts.Scope
	}

	applyString(&p.PartyName, opts.PartyName)
	applyString(&p.ProjectName, opts.ProjectName)
	applyString(&p.ContactPerson, opts.ContactPerson)
	applyString(&p.MobileNumber, opts.MobileNumber)
	applyString(&p.EmailID, opts.EmailID)
	applyString(&p.AgentName, opts.AgentName)
	if opts.ProjectValue != nil {
		p.ProjectValue = *opts.ProjectValue
	}
	if opts.AssignedTo != nil {
		if *opts.AssignedTo == "" {
			p.AssignedTo = nil
		} else {
			v := *opts.AssignedTo
			p.AssignedTo = &v
		}
	}
	if opts.AttachmentURLs != nil {
		p.AttachmentURLs = opts.AttachmentURLs
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	p.UpdatedAt = now
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	if stageEntry != nil {
		stageEntry.ChangedDate = now
		if err := e.Repo.AppendStageEntryTx(ctx, tx, p.ProjectNo, *stageEntry); err != nil {
			return domain.Project{}, fmt.Errorf("append stage history: %w", err)
		}
		if err := e.Events.Append(ctx, tx, events.StageChanged, p.ProjectNo, "stage", string(stageEntry.Stage), opts.ActorID, events.EventPayload{
			"stage":   string(stageEntry.Stage),
			"remarks": stageEntry.Remarks,
		}); err != nil {
			return domain.Project{}, err
		}
		p.StageHistory = p.StageHistory.Append(*stageEntry)
	}
	if scopeVersion != nil {
		scopeVersion.ModifiedDate = now
		if err := e.Repo.AppendScopeVersionTx(ctx, tx, p.ProjectNo, *scopeVersion); err != nil {
			return domain.Project{}, fmt.Errorf("append scope version: %w", err)
		}
		if err := e.Events.Append(ctx, tx, events.ScopeVersioned, p.ProjectNo, "scope", fmt.Sprintf("%d", scopeVersion.Version), opts.ActorID, events.EventPayload{
			"version": scopeVersion.Version,
		}); err != nil {
			return domain.Project{}, err
		}
		p.ScopeHistory = p.ScopeHistory.Append(*scopeVersion)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectUpdated, p.ProjectNo, "project", p.ProjectNo, opts.ActorID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// AdvanceOptions are parameters for recording an advance payment.
type AdvanceOptions struct {
	ProjectNo        string
	Amount           decimal.Decimal
	Date             string
	TallyEntryNumber string
	ActorID          string
}

// RecordAdvance appends an advance payment. Amounts must be strictly
// positive; there is no cap against the project value.
func (e Engine) RecordAdvance(ctx context.Context, opts AdvanceOptions) (domain.AdvancePayment, error) {
	if err := rules.CheckAdvance(opts.Amount); err != nil {
		return domain.AdvancePayment{}, err
	}
	if _, err := e.getActive(ctx, opts.ProjectNo); err != nil {
		return domain.AdvancePayment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AdvancePayment{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	a := domain.AdvancePayment{
		Amount:           opts.Amount,
		Date:             opts.Date,
		TallyEntryNumber: opts.TallyEntryNumber,
		ReceivedBy:       opts.ActorID,
		ReceivedDate:     now,
	}
	if a.Date == "" {
		a.Date = now
	}
	if err := e.Repo.AppendAdvanceTx(ctx, tx, opts.ProjectNo, a); err != nil {
		return domain.AdvancePayment{}, fmt.Errorf("append advance: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.AdvanceRecorded, opts.ProjectNo, "advance", opts.TallyEntryNumber, opts.ActorID, events.EventPayload{
		"amount": opts.Amount.String(),
	}); err != nil {
		return domain.AdvancePayment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AdvancePayment{}, err
	}
	return a, nil
}

// SerialOptions are parameters for recording a delivered serial number.
type SerialOptions struct {
	ProjectNo    string
	SerialNumber string
	Version      string
	ActorID      string
}

func (e Engine) RecordSerial(ctx context.Context, opts SerialOptions) (domain.SerialNumber, error) {
	if err := rules.CheckSerial(opts.SerialNumber); err != nil {
		return domain.SerialNumber{}, err
	}
	if _, err := e.getActive(ctx, opts.ProjectNo); err != nil {
		return domain.SerialNumber{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SerialNumber{}, err
	}
	defer tx.Rollback()

	s := domain.SerialNumber{
		SerialNumber: strings.TrimSpace(opts.SerialNumber),
		Version:      opts.Version,
		RecordedBy:   opts.ActorID,
		RecordedDate: e.timestamp(),
	}
	if err := e.Repo.AppendSerialTx(ctx, tx, opts.ProjectNo, s); err != nil {
		return domain.SerialNumber{}, fmt.Errorf("append serial: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.SerialRecorded, opts.ProjectNo, "serial", s.SerialNumber, opts.ActorID, events.EventPayload{
		"serial_number": s.SerialNumber,
		"version":       s.Version,
	}); err != nil {
		return domain.SerialNumber{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SerialNumber{}, err
	}
	return s, nil
}

// StatusOptions are parameters for posting a development status update.
type StatusOptions struct {
	ProjectNo       string
	StatusCode      string
	Notes           string
	AttachmentURLs  []string
	CompiledFileURL string
	ActorID         string
}

// RecordStatus appends a status update. The status code is an open set;
// codes the catalog marks as requiring a compiled file, and TestingStarted
// always, must carry a compiled file reference.
func (e Engine) RecordStatus(ctx context.Context, opts StatusOptions) (domain.StatusUpdate, error) {
	requiresArtifact := false
	if e.Config != nil {
		requiresArtifact = e.Config.RequiresCompiledFile(opts.StatusCode)
	}
	if err := rules.CheckStatusUpdate(opts.StatusCode, opts.Notes, opts.CompiledFileURL, requiresArtifact); err != nil {
		return domain.StatusUpdate{}, err
	}
	if _, err := e.getActive(ctx, opts.ProjectNo); err != nil {
		return domain.StatusUpdate{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	defer tx.Rollback()

	u := domain.StatusUpdate{
		StatusCode:      opts.StatusCode,
		Notes:           opts.Notes,
		AttachmentURLs:  opts.AttachmentURLs,
		CompiledFileURL: opts.CompiledFileURL,
		CreatedBy:       opts.ActorID,
		CreatedDate:     e.timestamp(),
	}
	if err := e.Repo.AppendStatusUpdateTx(ctx, tx, opts.ProjectNo, u); err != nil {
		return domain.StatusUpdate{}, fmt.Errorf("append status update: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.StatusRecorded, opts.ProjectNo, "status", u.StatusCode, opts.ActorID, events.EventPayload{
		"status_code": u.StatusCode,
	}); err != nil {
		return domain.StatusUpdate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StatusUpdate{}, err
	}
	return u, nil
}

// DeleteProject soft-deletes a project. History stays queryable but the
// project drops out of default listings and rejects further mutations.
func (e Engine) DeleteProject(ctx context.Context, projectNo, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectNo)
	if err != nil {
		return err
	}
	if p.Status == domain.ProjectStatusDeleted {
		return repo.ErrNotFound
	}
	if err := e.Repo.SoftDeleteProjectTx(ctx, tx, projectNo, e.timestamp()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ProjectDeleted, projectNo, "project", projectNo, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
