package domain

import "github.com/shopspring/decimal"

// ProjectStatusActive and ProjectStatusDeleted are the project record states.
// Deletion is soft: the row stays for the audit trail.
const (
	ProjectStatusActive  = "active"
	ProjectStatusDeleted = "deleted"
)

// ScopeVersion is one immutable revision of a project's scope text.
// Versions are 1-based and gapless in append order.
type ScopeVersion struct {
	Version      int    `json:"version"`
	Scope        string `json:"scope"`
	ModifiedBy   string `json:"modified_by"`
	ModifiedDate string `json:"modified_date" format:"date-time"`
}

// StageEntry records one accepted stage transition.
type StageEntry struct {
	Stage       Stage  `json:"stage"`
	ChangedBy   string `json:"changed_by"`
	ChangedDate string `json:"changed_date" format:"date-time"`
	Remarks     string `json:"remarks,omitempty"`
}

// AdvancePayment records money received against a project. TallyEntryNumber
// references the external accounting ledger.
type AdvancePayment struct {
	Amount           decimal.Decimal `json:"amount"`
	Date             string          `json:"date"`
	TallyEntryNumber string          `json:"tally_entry_number"`
	ReceivedBy       string          `json:"received_by"`
	ReceivedDate     string          `json:"received_date" format:"date-time"`
}

// SerialNumber records a product serial issued for a project.
type SerialNumber struct {
	SerialNumber string `json:"serial_number"`
	Version      string `json:"version,omitempty"`
	RecordedBy   string `json:"recorded_by"`
	RecordedDate string `json:"recorded_date" format:"date-time"`
}

// StatusUpdate is a development status note, tracked independently of the
// pipeline stage.
type StatusUpdate struct {
	StatusCode      string   `json:"status_code"`
	Notes           string   `json:"notes"`
	AttachmentURLs  []string `json:"attachment_urls,omitempty"`
	CompiledFileURL string   `json:"compiled_file_url,omitempty"`
	CreatedBy       string   `json:"created_by"`
	CreatedDate     string   `json:"created_date" format:"date-time"`
}

// Project is the aggregate: the record's scalar fields plus its owned
// append-only ledgers. Ledgers have no identity outside their project.
type Project struct {
	ProjectNo          string          `json:"project_no"`
	PartyName          string          `json:"party_name"`
	ProjectName        string          `json:"project_name"`
	ContactPerson      string          `json:"contact_person"`
	MobileNumber       string          `json:"mobile_number"`
	EmailID            string          `json:"email_id"`
	AgentName          string          `json:"agent_name"`
	ProjectValue       decimal.Decimal `json:"project_value"`
	ScopeOfDevelopment string          `json:"scope_of_development"`
	CurrentStage       Stage           `json:"current_stage"`
	AssignedTo         *string         `json:"assigned_to,omitempty"`
	AttachmentURLs     []string        `json:"attachment_urls,omitempty"`
	Status             string          `json:"status"`
	CreatedAt          string          `json:"created_at" format:"date-time"`
	UpdatedAt          string          `json:"updated_at" format:"date-time"`

	ScopeHistory  Ledger[ScopeVersion]   `json:"-"`
	StageHistory  Ledger[StageEntry]     `json:"-"`
	Advances      Ledger[AdvancePayment] `json:"-"`
	Serials       Ledger[SerialNumber]   `json:"-"`
	StatusUpdates Ledger[StatusUpdate]   `json:"-"`
}

// TotalAdvance sums all recorded advance payments. Zero when none exist.
func (p Project) TotalAdvance() decimal.Decimal {
	total := decimal.Zero
	for _, adv := range p.Advances.All() {
		total = total.Add(adv.Amount)
	}
	return total
}

// NeedsSerialNumber reports whether the project sits in Confirmed without a
// single serial number recorded.
func (p Project) NeedsSerialNumber() bool {
	return p.CurrentStage == StageConfirmed && p.Serials.Len() == 0
}

// LatestStatus returns the status update with the most recent CreatedDate.
// RFC3339 strings compare correctly as text; ties go to the later append.
func (p Project) LatestStatus() (StatusUpdate, bool) {
	updates := p.StatusUpdates.All()
	if len(updates) == 0 {
		return StatusUpdate{}, false
	}
	latest := updates[0]
	for _, u := range updates[1:] {
		if u.CreatedDate >= latest.CreatedDate {
			latest = u
		}
	}
	return latest, true
}

// AvailableNextStages lists the stages the project may move to, in pipeline
// order. The current stage is included, so a no-op transition is representable.
func (p Project) AvailableNextStages() []Stage {
	idx := p.CurrentStage.Index()
	if idx < 0 {
		return append([]Stage(nil), Stages...)
	}
	return append([]Stage(nil), Stages[idx:]...)
}

// Event is one audit log entry. Every accepted mutation appends one.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectNo  string `json:"project_no,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates a non-interactive caller as an actor.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
