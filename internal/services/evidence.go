package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/lifecycle"
	"github.com/attestra/attestra-backend/internal/pkg/canonical"
	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/repos"
	"github.com/attestra/attestra-backend/internal/types"
)

// EvidenceSchemaVersion is bumped whenever the evidence body layout changes.
const EvidenceSchemaVersion = 1

// EvidenceService produces the immutable evidence record for a terminal
// session. Generation is idempotent three ways: callers in this process
// collapse onto one flight, the unique (tenant, session) index closes the
// cross-process race, and losers return the winner's record unchanged.
type EvidenceService interface {
	GenerateForSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error)
	GetBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error)
	VerifyContentHash(evidence *types.TrainingEvidence) (bool, error)
}

type evidenceService struct {
	db           *gorm.DB
	log          *logger.Logger
	sessionRepo  repos.TrainingSessionRepo
	moduleRepo   repos.TrainingModuleRepo
	evidenceRepo repos.TrainingEvidenceRepo
	tenantConfig TenantConfigService
	compliance   ComplianceService
	audit        AuditService
	flights      singleflight.Group
}

func NewEvidenceService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessionRepo repos.TrainingSessionRepo,
	moduleRepo repos.TrainingModuleRepo,
	evidenceRepo repos.TrainingEvidenceRepo,
	tenantConfig TenantConfigService,
	compliance ComplianceService,
	audit AuditService,
) EvidenceService {
	return &evidenceService{
		db:           db,
		log:          baseLog.With("service", "EvidenceService"),
		sessionRepo:  sessionRepo,
		moduleRepo:   moduleRepo,
		evidenceRepo: evidenceRepo,
		tenantConfig: tenantConfig,
		compliance:   compliance,
		audit:        audit,
	}
}

func (es *evidenceService) GenerateForSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error) {
	key := tenantID.String() + ":" + sessionID.String()
	result, err, _ := es.flights.Do(key, func() (interface{}, error) {
		return es.generate(ctx, tenantID, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.TrainingEvidence), nil
}

func (es *evidenceService) generate(ctx context.Context, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error) {
	if existing, err := es.evidenceRepo.GetBySessionID(ctx, nil, tenantID, sessionID); err == nil {
		// Re-dispatch on the idempotent path: a pending upload row whose
		// job died with the process gets re-armed here, while terminal
		// rows make this a no-op.
		if derr := es.compliance.DispatchUpload(ctx, nil, tenantID, existing.ID); derr != nil {
			es.log.Warn("failed to re-dispatch compliance upload", "evidence_id", existing.ID, "error", derr)
		}
		return existing, nil
	}

	session, err := es.sessionRepo.GetByID(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if !lifecycle.IsTerminal(session.Status) {
		return nil, fmt.Errorf("session %s is %s, not terminal: %w", sessionID, session.Status, errs.ErrConflict)
	}

	modules, err := es.moduleRepo.GetBySession(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	policy, err := es.tenantConfig.TrainingPolicy(ctx, nil, tenantID)
	if err != nil {
		return nil, err
	}

	body, err := buildEvidenceBody(session, modules, policy)
	if err != nil {
		return nil, err
	}

	rawBody, err := canonical.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode evidence body: %w", err)
	}
	hash, err := canonical.Hash(body)
	if err != nil {
		return nil, fmt.Errorf("hash evidence body: %w", err)
	}

	row := &types.TrainingEvidence{
		ID:            uuid.New(),
		TenantID:      tenantID,
		SessionID:     sessionID,
		EmployeeID:    session.EmployeeID,
		SchemaVersion: EvidenceSchemaVersion,
		Body:          datatypes.JSON(rawBody),
		ContentHash:   hash,
		GeneratedAt:   time.Now().UTC(),
	}

	created, err := es.evidenceRepo.Create(ctx, nil, row)
	if err != nil {
		return nil, err
	}

	if created.ID == row.ID {
		es.audit.Record(ctx, nil, tenantID, &session.EmployeeID, AuditEvidenceGenerated, map[string]interface{}{
			"session_id":   sessionID.String(),
			"evidence_id":  created.ID.String(),
			"content_hash": created.ContentHash,
			"status":       session.Status,
		})
		es.log.Info("evidence generated", "session_id", sessionID, "evidence_id", created.ID, "content_hash", created.ContentHash)

		if err := es.compliance.DispatchUpload(ctx, nil, tenantID, created.ID); err != nil {
			// Delivery failures never surface to the session flow; the
			// pending ledger row (if any) carries the state.
			es.log.Warn("failed to dispatch compliance upload", "evidence_id", created.ID, "error", err)
		}
	}
	return created, nil
}

func buildEvidenceBody(session *types.TrainingSession, modules []*types.TrainingModule, policy TrainingPolicy) (*types.EvidenceBody, error) {
	moduleEvidence := make([]types.ModuleEvidence, 0, len(modules))
	moduleScores := make(map[string]float64)

	for _, m := range modules {
		var responses []types.ScenarioResponse
		if len(m.ScenarioResponses) > 0 {
			if err := json.Unmarshal(m.ScenarioResponses, &responses); err != nil {
				return nil, fmt.Errorf("decode scenario responses for module %d: %w", m.ModuleIndex, err)
			}
		}
		if responses == nil {
			responses = []types.ScenarioResponse{}
		}

		var answers []types.QuizAnswer
		if len(m.QuizAnswers) > 0 {
			if err := json.Unmarshal(m.QuizAnswers, &answers); err != nil {
				return nil, fmt.Errorf("decode quiz answers for module %d: %w", m.ModuleIndex, err)
			}
		}
		evidenceAnswers := make([]types.EvidenceQuizAnswer, 0, len(answers))
		for _, a := range answers {
			evidenceAnswers = append(evidenceAnswers, types.EvidenceQuizAnswer{
				QuestionIndex:  a.QuestionIndex,
				SelectedOption: a.SelectedOption,
				Score:          a.Score,
			})
		}

		moduleEvidence = append(moduleEvidence, types.ModuleEvidence{
			ModuleIndex:       m.ModuleIndex,
			Title:             m.Title,
			TopicArea:         m.TopicArea,
			Status:            m.Status,
			ModuleScore:       m.ModuleScore,
			ScenarioResponses: responses,
			QuizAnswers:       evidenceAnswers,
		})
		if m.ModuleScore != nil {
			moduleScores[strconv.Itoa(m.ModuleIndex)] = *m.ModuleScore
		}
	}

	var weakAreas []string
	if len(session.WeakAreas) > 0 {
		if err := json.Unmarshal(session.WeakAreas, &weakAreas); err != nil {
			return nil, fmt.Errorf("decode weak areas: %w", err)
		}
	}
	if weakAreas == nil {
		weakAreas = []string{}
	}

	// Passed is tri-state: abandoned sessions carry no verdict at all.
	var passed *bool
	switch session.Status {
	case lifecycle.StatusPassed:
		v := true
		passed = &v
	case lifecycle.StatusExhausted:
		v := false
		passed = &v
	}

	return &types.EvidenceBody{
		SessionSummary: types.EvidenceSessionSummary{
			SessionID:     session.ID.String(),
			TenantID:      session.TenantID.String(),
			EmployeeID:    session.EmployeeID.String(),
			Status:        session.Status,
			AttemptNumber: session.AttemptNumber,
			StartedAt:     session.CreatedAt.UTC(),
			CompletedAt:   session.CompletedAt,
		},
		PolicyAttestation: types.PolicyAttestation{
			PolicyConfigHash:   session.PolicyConfigHash,
			RoleProfileID:      session.RoleProfileID,
			RoleProfileVersion: session.RoleProfileVersion,
			AppVersion:         session.AppVersion,
			PassThreshold:      policy.PassThreshold,
			MaxAttempts:        policy.MaxAttempts,
		},
		Modules: moduleEvidence,
		Outcome: types.EvidenceOutcomeSummary{
			Passed:         passed,
			AggregateScore: session.AggregateScore,
			WeakAreas:      weakAreas,
			ModuleScores:   moduleScores,
		},
	}, nil
}

func (es *evidenceService) GetBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error) {
	return es.evidenceRepo.GetBySessionID(ctx, tx, tenantID, sessionID)
}

// VerifyContentHash recomputes the hash from the stored body, proving the
// record has not been altered since generation.
func (es *evidenceService) VerifyContentHash(evidence *types.TrainingEvidence) (bool, error) {
	if evidence == nil {
		return false, fmt.Errorf("nil evidence: %w", errs.ErrInvalidArgument)
	}
	var body interface{}
	if err := json.Unmarshal(evidence.Body, &body); err != nil {
		return false, fmt.Errorf("decode evidence body: %w", err)
	}
	hash, err := canonical.Hash(body)
	if err != nil {
		return false, err
	}
	return hash == evidence.ContentHash, nil
}
