package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TrainingEvidence is the immutable record generated once a session reaches a
// terminal status. There is no update or delete path; ContentHash must be
// reproducible by re-hashing Body alone. The unique index on (tenant_id,
// session_id) backs the at-most-once guarantee under concurrent generation.
type TrainingEvidence struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_evidence_tenant_session,unique" json:"tenant_id"`
	SessionID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_evidence_tenant_session,unique" json:"session_id"`
	EmployeeID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"employee_id"`
	SchemaVersion int            `gorm:"column:schema_version;not null;default:1" json:"schema_version"`
	Body          datatypes.JSON `gorm:"type:jsonb;column:body;not null" json:"body"`
	ContentHash   string         `gorm:"column:content_hash;not null" json:"content_hash"`
	GeneratedAt   time.Time      `gorm:"column:generated_at;not null" json:"generated_at"`
}

func (TrainingEvidence) TableName() string { return "training_evidence" }

// EvidenceBody is the hashed payload of a TrainingEvidence row.
type EvidenceBody struct {
	SessionSummary    EvidenceSessionSummary `json:"session_summary"`
	PolicyAttestation PolicyAttestation      `json:"policy_attestation"`
	Modules           []ModuleEvidence       `json:"modules"`
	Outcome           EvidenceOutcomeSummary `json:"outcome"`
}

type EvidenceSessionSummary struct {
	SessionID     string     `json:"session_id"`
	TenantID      string     `json:"tenant_id"`
	EmployeeID    string     `json:"employee_id"`
	Status        string     `json:"status"`
	AttemptNumber int        `json:"attempt_number"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// PolicyAttestation binds the record to the exact policy in force when the
// session completed.
type PolicyAttestation struct {
	PolicyConfigHash   string  `json:"policy_config_hash"`
	RoleProfileID      string  `json:"role_profile_id"`
	RoleProfileVersion int     `json:"role_profile_version"`
	AppVersion         string  `json:"app_version"`
	PassThreshold      float64 `json:"pass_threshold"`
	MaxAttempts        int     `json:"max_attempts"`
}

// ModuleEvidence carries the employee's answers and verdicts but never the
// answer key.
type ModuleEvidence struct {
	ModuleIndex       int                  `json:"module_index"`
	Title             string               `json:"title"`
	TopicArea         string               `json:"topic_area"`
	Status            string               `json:"status"`
	ModuleScore       *float64             `json:"module_score,omitempty"`
	ScenarioResponses []ScenarioResponse   `json:"scenario_responses"`
	QuizAnswers       []EvidenceQuizAnswer `json:"quiz_answers"`
}

// EvidenceQuizAnswer mirrors QuizAnswer without leaking which option was
// objectively correct.
type EvidenceQuizAnswer struct {
	QuestionIndex  int     `json:"question_index"`
	SelectedOption string  `json:"selected_option"`
	Score          float64 `json:"score"`
}

// EvidenceOutcomeSummary records the terminal verdict. Passed is tri-state:
// nil means unknown (abandoned sessions).
type EvidenceOutcomeSummary struct {
	Passed         *bool              `json:"passed"`
	AggregateScore *float64           `json:"aggregate_score,omitempty"`
	WeakAreas      []string           `json:"weak_areas"`
	ModuleScores   map[string]float64 `json:"module_scores"`
}
