package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TrainingModule is one curriculum unit inside a session. ModuleScore is
// non-nil exactly when Status is "scored".
type TrainingModule struct {
	ID                    uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID              uuid.UUID        `gorm:"type:uuid;not null;index" json:"tenant_id"`
	SessionID             uuid.UUID        `gorm:"type:uuid;not null;index:idx_module_session_index,unique" json:"session_id"`
	Session               *TrainingSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	ModuleIndex           int              `gorm:"column:module_index;not null;index:idx_module_session_index,unique" json:"module_index"`
	Title                 string           `gorm:"column:title;not null" json:"title"`
	TopicArea             string           `gorm:"column:topic_area;not null" json:"topic_area"`
	JobExpectationIndices datatypes.JSON   `gorm:"type:jsonb;column:job_expectation_indices" json:"job_expectation_indices,omitempty"`
	Status                string           `gorm:"column:status;not null" json:"status"`
	Content               datatypes.JSON   `gorm:"type:jsonb;column:content" json:"content,omitempty"`
	ScenarioResponses     datatypes.JSON   `gorm:"type:jsonb;column:scenario_responses" json:"scenario_responses,omitempty"`
	QuizAnswers           datatypes.JSON   `gorm:"type:jsonb;column:quiz_answers" json:"quiz_answers,omitempty"`
	ModuleScore           *float64         `gorm:"column:module_score" json:"module_score,omitempty"`
	Version               int64            `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt             time.Time        `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"not null;default:now()" json:"updated_at"`
}

func (TrainingModule) TableName() string { return "training_module" }

// ModuleContent is the structured AI-generated payload stored on a module.
// CorrectOption on quiz questions is answer-key metadata and is stripped
// before any content reaches evidence records.
type ModuleContent struct {
	LearningPoints []string       `json:"learning_points"`
	Scenarios      []Scenario     `json:"scenarios"`
	QuizQuestions  []QuizQuestion `json:"quiz_questions"`
}

type Scenario struct {
	Prompt string `json:"prompt"`
}

type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
}

// ScenarioResponse is an employee's free-text answer plus the evaluator's
// verdict.
type ScenarioResponse struct {
	ScenarioIndex int       `json:"scenario_index"`
	Response      string    `json:"response"`
	Score         float64   `json:"score"`
	Rationale     string    `json:"rationale"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// QuizAnswer is an employee's selected option with its local score.
type QuizAnswer struct {
	QuestionIndex  int       `json:"question_index"`
	SelectedOption string    `json:"selected_option"`
	Score          float64   `json:"score"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
