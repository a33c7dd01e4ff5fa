package server

import (
	"salesline/internal/config"
	"salesline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	PartyName          string   `json:"party_name"`
	ProjectName        string   `json:"project_name"`
	ContactPerson      *string  `json:"contact_person,omitempty"`
	MobileNumber       *string  `json:"mobile_number,omitempty"`
	EmailID            *string  `json:"email_id,omitempty"`
	AgentName          *string  `json:"agent_name,omitempty"`
	ProjectValue       string   `json:"project_value"`
	ScopeOfDevelopment string   `json:"scope_of_development"`
	AssignedTo         *string  `json:"assigned_to,omitempty"`
	AttachmentURLs     []string `json:"attachment_urls,omitempty"`
}

type UpdateProjectRequest struct {
	PartyName          *string  `json:"party_name,omitempty"`
	ProjectName        *string  `json:"project_name,omitempty"`
	ContactPerson      *string  `json:"contact_person,omitempty"`
	MobileNumber       *string  `json:"mobile_number,omitempty"`
	EmailID            *string  `json:"email_id,omitempty"`
	AgentName          *string  `json:"agent_name,omitempty"`
	ProjectValue       *string  `json:"project_value,omitempty"`
	ScopeOfDevelopment *string  `json:"scope_of_development,omitempty"`
	Stage              *string  `json:"stage,omitempty" enum:"Pre-Sales,Quotation,Confirmed,Development,Completed"`
	StageRemarks       *string  `json:"stage_remarks,omitempty"`
	AssignedTo         *string  `json:"assigned_to,omitempty"`
	AttachmentURLs     []string `json:"attachment_urls,omitempty"`
}

type CreateAdvanceRequest struct {
	Amount           string  `json:"amount"`
	Date             *string `json:"date,omitempty" format:"date-time"`
	TallyEntryNumber string  `json:"tally_entry_number,omitempty"`
}

type CreateSerialRequest struct {
	SerialNumber string  `json:"serial_number"`
	Version      *string `json:"version,omitempty"`
}

type CreateStatusUpdateRequest struct {
	StatusCode      string   `json:"status_code"`
	Notes           string   `json:"notes"`
	AttachmentURLs  []string `json:"attachment_urls,omitempty"`
	CompiledFileURL *string  `json:"compiled_file_url,omitempty"`
}

// Response payloads

type ScopeVersionResponse struct {
	Version      int    `json:"version"`
	Scope        string `json:"scope"`
	ModifiedBy   string `json:"modified_by"`
	ModifiedDate string `json:"modified_date" format:"date-time"`
}

type StageEntryResponse struct {
	Stage       string `json:"stage" enum:"Pre-Sales,Quotation,Confirmed,Development,Completed"`
	ChangedBy   string `json:"changed_by"`
	ChangedDate string `json:"changed_date" format:"date-time"`
	Remarks     string `json:"remarks,omitempty"`
}

type AdvanceResponse struct {
	Amount           string `json:"amount"`
	Date             string `json:"date"`
	TallyEntryNumber string `json:"tally_entry_number,omitempty"`
	ReceivedBy       string `json:"received_by"`
	ReceivedDate     string `json:"received_date" format:"date-time"`
}

type SerialResponse struct {
	SerialNumber string `json:"serial_number"`
	Version      string `json:"version,omitempty"`
	RecordedBy   string `json:"recorded_by"`
	RecordedDate string `json:"recorded_date" format:"date-time"`
}

type StatusUpdateResponse struct {
	StatusCode      string   `json:"status_code"`
	Notes           string   `json:"notes"`
	AttachmentURLs  []string `json:"attachment_urls,omitempty"`
	CompiledFileURL string   `json:"compiled_file_url,omitempty"`
	CreatedBy       string   `json:"created_by"`
	CreatedDate     string   `json:"created_date" format:"date-time"`
}

type ProjectResponse struct {
	ProjectNo           string                 `json:"project_no"`
	PartyName           string                 `json:"party_name"`
	ProjectName         string                 `json:"project_name"`
	ContactPerson       string                 `json:"contact_person,omitempty"`
	MobileNumber        string                 `json:"mobile_number,omitempty"`
	EmailID             string                 `json:"email_id,omitempty"`
	AgentName           string                 `json:"agent_name,omitempty"`
	ProjectValue        string                 `json:"project_value"`
	ScopeOfDevelopment  string                 `json:"scope_of_development"`
	ScopeVersion        int                    `json:"scope_version"`
	CurrentStage        string                 `json:"current_stage" enum:"Pre-Sales,Quotation,Confirmed,Development,Completed"`
	AvailableNextStages []string               `json:"available_next_stages"`
	AssignedTo          *string                `json:"assigned_to,omitempty"`
	AttachmentURLs      []string               `json:"attachment_urls,omitempty"`
	Status              string                 `json:"status"`
	TotalAdvance        string                 `json:"total_advance"`
	NeedsSerialNumber   bool                   `json:"needs_serial_number"`
	LatestStatus        *StatusUpdateResponse  `json:"latest_status,omitempty"`
	ScopeHistory        []ScopeVersionResponse `json:"scope_history"`
	StageHistory        []StageEntryResponse   `json:"stage_history"`
	Advances            []AdvanceResponse      `json:"advances"`
	Serials             []SerialResponse       `json:"serials"`
	StatusUpdates       []StatusUpdateResponse `json:"status_updates"`
	CreatedAt           string                 `json:"created_at" format:"date-time"`
	UpdatedAt           string                 `json:"updated_at" format:"date-time"`
}

type ProjectSummaryResponse struct {
	ProjectNo         string `json:"project_no"`
	PartyName         string `json:"party_name"`
	ProjectName       string `json:"project_name"`
	ProjectValue      string `json:"project_value"`
	CurrentStage      string `json:"current_stage" enum:"Pre-Sales,Quotation,Confirmed,Development,Completed"`
	Status            string `json:"status"`
	NeedsSerialNumber bool   `json:"needs_serial_number"`
	CreatedAt         string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectNo  string         `json:"project_no,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type StatusMasterEntry struct {
	Code                 string `json:"code"`
	Description          string `json:"description"`
	RequiresCompiledFile bool   `json:"requires_compiled_file"`
}

type StageInfoResponse struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type paginatedProjects struct {
	Items      []ProjectSummaryResponse `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func domainStages() []string {
	names := make([]string, 0, len(domain.Stages))
	for _, s := range domain.Stages {
		names = append(names, string(s))
	}
	return names
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	res := ProjectResponse{
		ProjectNo:          p.ProjectNo,
		PartyName:          p.PartyName,
		ProjectName:        p.ProjectName,
		ContactPerson:      p.ContactPerson,
		MobileNumber:       p.MobileNumber,
		EmailID:            p.EmailID,
		AgentName:          p.AgentName,
		ProjectValue:       p.ProjectValue.String(),
		ScopeOfDevelopment: p.ScopeOfDevelopment,
		ScopeVersion:       p.ScopeHistory.Len(),
		CurrentStage:       string(p.CurrentStage),
		AssignedTo:         p.AssignedTo,
		AttachmentURLs:     p.AttachmentURLs,
		Status:             p.Status,
		TotalAdvance:       p.TotalAdvance().String(),
		NeedsSerialNumber:  p.NeedsSerialNumber(),
		ScopeHistory:       []ScopeVersionResponse{},
		StageHistory:       []StageEntryResponse{},
		Advances:           []AdvanceResponse{},
		Serials:            []SerialResponse{},
		StatusUpdates:      []StatusUpdateResponse{},
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	for _, s := range p.AvailableNextStages() {
		res.AvailableNextStages = append(res.AvailableNextStages, string(s))
	}
	for _, v := range p.ScopeHistory.All() {
		res.ScopeHistory = append(res.ScopeHistory, ScopeVersionResponse(v))
	}
	for _, e := range p.StageHistory.All() {
		res.StageHistory = append(res.StageHistory, StageEntryResponse{
			Stage: string(e.Stage), ChangedBy: e.ChangedBy, ChangedDate: e.ChangedDate, Remarks: e.Remarks,
		})
	}
	for _, a := range p.Advances.All() {
		res.Advances = append(res.Advances, advanceResponse(a))
	}
	for _, s := range p.Serials.All() {
		res.Serials = append(res.Serials, SerialResponse(s))
	}
	for _, u := range p.StatusUpdates.All() {
		res.StatusUpdates = append(res.StatusUpdates, statusUpdateResponse(u))
	}
	if latest, ok := p.LatestStatus(); ok {
		lr := statusUpdateResponse(latest)
		res.LatestStatus = &lr
	}
	return res
}

func projectSummaryResponse(p domain.Project, serialCount int) ProjectSummaryResponse {
	return ProjectSummaryResponse{
		ProjectNo:         p.ProjectNo,
		PartyName:         p.PartyName,
		ProjectName:       p.ProjectName,
		ProjectValue:      p.ProjectValue.String(),
		CurrentStage:      string(p.CurrentStage),
		Status:            p.Status,
		NeedsSerialNumber: p.CurrentStage == domain.StageConfirmed && serialCount == 0,
		CreatedAt:         p.CreatedAt,
	}
}

func advanceResponse(a domain.AdvancePayment) AdvanceResponse {
	return AdvanceResponse{
		Amount:           a.Amount.String(),
		Date:             a.Date,
		TallyEntryNumber: a.TallyEntryNumber,
		ReceivedBy:       a.ReceivedBy,
		ReceivedDate:     a.ReceivedDate,
	}
}

func statusUpdateResponse(u domain.StatusUpdate) StatusUpdateResponse {
	return StatusUpdateResponse{
		StatusCode:      u.StatusCode,
		Notes:           u.Notes,
		AttachmentURLs:  u.AttachmentURLs,
		CompiledFileURL: u.CompiledFileURL,
		CreatedBy:       u.CreatedBy,
		CreatedDate:     u.CreatedDate,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectNo:  e.ProjectNo,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func statusMasterResponse(cfg *config.Config) []StatusMasterEntry {
	var entries []StatusMasterEntry
	for _, code := range cfg.StatusCodes() {
		entry := cfg.Statuses.Catalog[code]
		entries = append(entries, StatusMasterEntry{
			Code:                 code,
			Description:          entry.Description,
			RequiresCompiledFile: cfg.RequiresCompiledFile(code),
		})
	}
	return entries
}
