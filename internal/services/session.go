package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/lifecycle"
	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/platform/contentai"
	"github.com/attestra/attestra-backend/internal/repos"
	"github.com/attestra/attestra-backend/internal/scoring"
	"github.com/attestra/attestra-backend/internal/types"
)

// Action values returned to the caller after evaluation.
const (
	ActionContinue             = "continue"
	ActionComplete             = "complete"
	ActionRemediationAvailable = "remediation-available"
	ActionExhausted            = "exhausted"
	ActionAbandoned            = "abandoned"
)

// SubmitResult is the synchronous feedback for a quiz submission. Evaluated
// is true when the answer closed the last open module and the session was
// evaluated in the same request.
type SubmitResult struct {
	Module    *types.TrainingModule  `json:"module"`
	Session   *types.TrainingSession `json:"session"`
	Evaluated bool                   `json:"evaluated"`
	Action    string                 `json:"action"`
}

// SessionService drives a training session through its lifecycle. Every
// state-changing write goes through the transition table and an optimistic
// version check; a lost race surfaces as a conflict the caller must re-fetch
// through.
type SessionService interface {
	StartSession(ctx context.Context, tenantID, employeeID uuid.UUID) (*types.TrainingSession, []*types.TrainingModule, error)
	GetSession(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID) (*types.TrainingSession, []*types.TrainingModule, error)
	ListSessions(ctx context.Context, tenantID, employeeID uuid.UUID) ([]*types.TrainingSession, error)
	OpenModule(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID, moduleIndex int) (*types.TrainingModule, error)
	SubmitScenarioResponse(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID, moduleIndex, scenarioIndex int, response string) (*types.TrainingModule, error)
	SubmitQuizAnswer(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID, moduleIndex, questionIndex int, selectedOption string) (*SubmitResult, error)
	StartRemediation(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID) (*types.TrainingSession, error)
	Abandon(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID) (*types.TrainingSession, error)
}

type sessionService struct {
	db           *gorm.DB
	log          *logger.Logger
	sessionRepo  repos.TrainingSessionRepo
	moduleRepo   repos.TrainingModuleRepo
	employeeRepo repos.EmployeeRepo
	tenantConfig TenantConfigService
	content      contentai.Client
	evidence     EvidenceService
	audit        AuditService
	appVersion   string
}

func NewSessionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessionRepo repos.TrainingSessionRepo,
	moduleRepo repos.TrainingModuleRepo,
	employeeRepo repos.EmployeeRepo,
	tenantConfig TenantConfigService,
	content contentai.Client,
	evidence EvidenceService,
	audit AuditService,
	appVersion string,
) SessionService {
	return &sessionService{
		db:           db,
		log:          baseLog.With("service", "SessionService"),
		sessionRepo:  sessionRepo,
		moduleRepo:   moduleRepo,
		employeeRepo: employeeRepo,
		tenantConfig: tenantConfig,
		content:      content,
		evidence:     evidence,
		audit:        audit,
		appVersion:   appVersion,
	}
}

// StartSession creates a new attempt chain for the employee. The session row
// is persisted in the generating state before the curriculum call, so the
// attempt is durably visible while generation runs; if generation fails, the
// placeholder row is removed and the employee can start again.
func (ss *sessionService) StartSession(ctx context.Context, tenantID, employeeID uuid.UUID) (*types.TrainingSession, []*types.TrainingModule, error) {
	employee, err := ss.employeeRepo.GetByID(ctx, nil, tenantID, employeeID)
	if err != nil {
		return nil, nil, err
	}

	if active, err := ss.sessionRepo.GetActiveByEmployee(ctx, nil, tenantID, employeeID); err == nil {
		return nil, nil, fmt.Errorf("employee already has active session %s: %w", active.ID, errs.ErrConflict)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, nil, err
	}

	tenant, err := ss.tenantConfig.GetTenant(ctx, nil, tenantID)
	if err != nil {
		return nil, nil, err
	}
	policyHash, err := ss.tenantConfig.PolicyConfigHash(ctx, nil, tenantID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	session := &types.TrainingSession{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		EmployeeID:         employeeID,
		RoleProfileID:      employee.RoleProfileID,
		RoleProfileVersion: 1,
		PolicyConfigHash:   policyHash,
		AppVersion:         ss.appVersion,
		Status:             lifecycle.StatusCurriculumGenerating,
		AttemptNumber:      1,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := ss.sessionRepo.Create(ctx, nil, session); err != nil {
		return nil, nil, err
	}

	// Compensation for failures between creating the placeholder row and
	// committing the ready session.
	abort := func(cause error) (*types.TrainingSession, []*types.TrainingModule, error) {
		if derr := ss.sessionRepo.Delete(ctx, nil, tenantID, session.ID); derr != nil {
			ss.log.Error("failed to remove session after generation failure", "session_id", session.ID, "error", derr)
		}
		return nil, nil, cause
	}

	outline, err := ss.content.GenerateCurriculum(ctx, contentai.GenerateCurriculumRequest{
		TenantSlug:     tenant.Slug,
		RoleProfileID:  employee.RoleProfileID,
		RoleProfileVer: 1,
	})
	if err != nil {
		return abort(fmt.Errorf("generate curriculum: %w", err))
	}

	curriculumJSON, err := json.Marshal(outline)
	if err != nil {
		return abort(fmt.Errorf("encode curriculum: %w", err))
	}

	nextStatus, err := lifecycle.Transition(session.Status, lifecycle.EventCurriculumReady)
	if err != nil {
		return abort(err)
	}
	session.Status = nextStatus
	session.Curriculum = datatypes.JSON(curriculumJSON)

	modules := make([]*types.TrainingModule, 0, len(outline.Modules))
	for i, mo := range outline.Modules {
		indices, err := json.Marshal(mo.JobExpectationIndices)
		if err != nil {
			return abort(fmt.Errorf("encode expectation indices: %w", err))
		}
		modules = append(modules, &types.TrainingModule{
			ID:                    uuid.New(),
			TenantID:              tenantID,
			SessionID:             session.ID,
			ModuleIndex:           i,
			Title:                 mo.Title,
			TopicArea:             mo.TopicArea,
			JobExpectationIndices: datatypes.JSON(indices),
			Status:                lifecycle.ModuleStatusLocked,
			Version:               1,
		})
	}

	err = ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ss.sessionRepo.UpdateVersioned(ctx, tx, session, 1); err != nil {
			return err
		}
		if _, err := ss.moduleRepo.Create(ctx, tx, modules); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			// Someone else moved the row; leave it to them.
			return nil, nil, err
		}
		return abort(err)
	}

	ss.audit.Record(ctx, nil, tenantID, &employeeID, AuditSessionStarted, map[string]interface{}{
		"session_id":   session.ID.String(),
		"role_profile": session.RoleProfileID,
		"modules":      len(modules),
	})
	ss.log.Info("session started", "session_id", session.ID, "employee_id", employeeID, "modules", len(modules))
	return session, modules, nil
}

func (ss *sessionService) GetSession(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID) (*types.TrainingSession, []*types.TrainingModule, error) {
	session, err := ss.loadOwnedSession(ctx, tenantID, employeeID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	modules, err := ss.moduleRepo.GetBySession(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, modules, nil
}

func (ss *sessionService) ListSessions(ctx context.Context, tenantID, employeeID uuid.UUID) ([]*types.TrainingSession, error) {
	return ss.sessionRepo.ListByEmployee(ctx, nil, tenantID, employeeID)
}

// OpenModule unlocks the next curriculum unit and generates its content
// synchronously. Modules open strictly in index order.
func (ss *sessionService) OpenModule(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID, moduleIndex int) (*types.TrainingModule, error) {
	session, err := ss.loadOwnedSession(ctx, tenantID, employeeID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != lifecycle.StatusInProgress && session.Status != lifecycle.StatusInRemediation {
		return nil, fmt.Errorf("session is %s: %w", session.Status, errs.ErrConflict)
	}

	modules, err := ss.moduleRepo.GetBySession(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	module := moduleAt(modules, moduleIndex)
	if module == nil {
		return nil, fmt.Errorf("module %d: %w", moduleIndex, errs.ErrNotFound)
	}
	for _, m := range modules {
		if m.ModuleIndex < moduleIndex && m.Status != lifecycle.ModuleStatusScored {
			return nil, fmt.Errorf("module %d is still %s: %w", m.ModuleIndex, m.Status, errs.ErrConflict)
		}
	}

	generating, err := lifecycle.TransitionModule(module.Status, lifecycle.ModuleEventOpened)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrConflict)
	}
	expected := module.Version
	module.Status = generating
	if err := ss.moduleRepo.UpdateVersioned(ctx, nil, module, expected); err != nil {
		return nil, err
	}

	tenant, err := ss.tenantConfig.GetTenant(ctx, nil, tenantID)
	if err != nil {
		return nil, err
	}
	content, err := ss.content.GenerateModuleContent(ctx, contentai.GenerateModuleContentRequest{
		TenantSlug:    tenant.Slug,
		RoleProfileID: session.RoleProfileID,
		ModuleTitle:   module.Title,
		TopicArea:     module.TopicArea,
	})
	if err != nil {
		return nil, fmt.Errorf("generate module content: %w", err)
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode module content: %w", err)
	}

	learning, err := lifecycle.TransitionModule(module.Status, lifecycle.ModuleEventContentReady)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrConflict)
	}
	expected = module.Version
	module.Status = learning
	module.Content = datatypes.JSON(contentJSON)
	if err := ss.moduleRepo.UpdateVersioned(ctx, nil, module, expected); err != nil {
		return nil, err
	}
	return module, nil
}

// SubmitScenarioResponse grades one free-text answer. The first answer moves
// the module to scenario-active; the last one moves it to quiz-active.
func (ss *sessionService) SubmitScenarioResponse(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID, moduleIndex, scenarioIndex int, response string) (*types.TrainingModule, error) {
	if strings.TrimSpace(response) == "" {
		return nil, fmt.Errorf("empty response: %w", errs.ErrInvalidArgument)
	}

	session, err := ss.loadOwnedSession(ctx, tenantID, employeeID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != lifecycle.StatusInProgress && session.Status != lifecycle.StatusInRemediation {
		return nil, fmt.Errorf("session is %s: %w", session.Status, errs.ErrConflict)
	}
	module, content, err := ss.loadOpenModule(ctx, tenantID, sessionID, moduleIndex)
	if err != nil {
		return nil, err
	}
	if module.Status != lifecycle.ModuleStatusLearning && module.Status != lifecycle.ModuleStatusScenarioActive {
		return nil, fmt.Errorf("module is %s: %w", module.Status, errs.ErrConflict)
	}
	if scenarioIndex < 0 || scenarioIndex >= len(content.Scenarios) {
		return nil, fmt.Errorf("scenario index %d out of range: %w", scenarioIndex, errs.ErrInvalidArgument)
	}

	var responses []types.ScenarioResponse
	if len(module.ScenarioResponses) > 0 {
		if err := json.Unmarshal(module.ScenarioResponses, &responses); err != nil {
			return nil, fmt.Errorf("decode scenario responses: %w", err)
		}
	}
	for _, r := range responses {
		if r.ScenarioIndex == scenarioIndex {
			return nil, fmt.Errorf("scenario %d already answered: %w", scenarioIndex, errs.ErrConflict)
		}
	}

	tenant, err := ss.tenantConfig.GetTenant(ctx, nil, tenantID)
	if err != nil {
		return nil, err
	}
	eval, err := ss.content.EvaluateScenario(ctx, contentai.EvaluateScenarioRequest{
		TenantSlug:   tenant.Slug,
		ScenarioText: content.Scenarios[scenarioIndex].Prompt,
		Response:     response,
		TopicArea:    module.TopicArea,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate scenario: %w", err)
	}

	responses = append(responses, types.ScenarioResponse{
		ScenarioIndex: scenarioIndex,
		Response:      response,
		Score:         eval.Score,
		Rationale:     eval.Rationale,
		SubmittedAt:   time.Now().UTC(),
	})
	responsesJSON, err := json.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("encode scenario responses: %w", err)
	}

	event := lifecycle.ModuleEventScenarioStarted
	if len(responses) == len(content.Scenarios) {
		event = lifecycle.ModuleEventScenariosDone
	} else if module.Status == lifecycle.ModuleStatusScenarioActive {
		event = ""
	}
	next := module.Status
	if event != "" {
		next, err = lifecycle.TransitionModule(module.Status, event)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, errs.ErrConflict)
		}
	}

	expected := module.Version
	module.Status = next
	module.ScenarioResponses = datatypes.JSON(responsesJSON)
	if err := ss.moduleRepo.UpdateVersioned(ctx, nil, module, expected); err != nil {
		return nil, err
	}
	return module, nil
}

// SubmitQuizAnswer grades one selection locally against the stored answer
// key. The last answer scores the module; scoring the last open module
// evaluates the whole session in the same request.
func (ss *sessionService) SubmitQuizAnswer(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID, moduleIndex, questionIndex int, selectedOption string) (*SubmitResult, error) {
	session, err := ss.loadOwnedSession(ctx, tenantID, employeeID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != lifecycle.StatusInProgress && session.Status != lifecycle.StatusInRemediation {
		return nil, fmt.Errorf("session is %s: %w", session.Status, errs.ErrConflict)
	}
	module, content, err := ss.loadOpenModule(ctx, tenantID, sessionID, moduleIndex)
	if err != nil {
		return nil, err
	}

	// A module whose content has no scenarios goes straight from learning
	// to quiz-active on the first quiz answer.
	if module.Status == lifecycle.ModuleStatusLearning && len(content.Scenarios) == 0 {
		next, terr := lifecycle.TransitionModule(module.Status, lifecycle.ModuleEventScenariosDone)
		if terr != nil {
			return nil, fmt.Errorf("%v: %w", terr, errs.ErrConflict)
		}
		expected := module.Version
		module.Status = next
		if err := ss.moduleRepo.UpdateVersioned(ctx, nil, module, expected); err != nil {
			return nil, err
		}
	}
	if module.Status != lifecycle.ModuleStatusQuizActive {
		return nil, fmt.Errorf("module is %s: %w", module.Status, errs.ErrConflict)
	}
	if questionIndex < 0 || questionIndex >= len(content.QuizQuestions) {
		return nil, fmt.Errorf("question index %d out of range: %w", questionIndex, errs.ErrInvalidArgument)
	}

	var answers []types.QuizAnswer
	if len(module.QuizAnswers) > 0 {
		if err := json.Unmarshal(module.QuizAnswers, &answers); err != nil {
			return nil, fmt.Errorf("decode quiz answers: %w", err)
		}
	}
	for _, a := range answers {
		if a.QuestionIndex == questionIndex {
			return nil, fmt.Errorf("question %d already answered: %w", questionIndex, errs.ErrConflict)
		}
	}

	answers = append(answers, types.QuizAnswer{
		QuestionIndex:  questionIndex,
		SelectedOption: selectedOption,
		Score:          scoring.ScoreMCAnswer(selectedOption, content.QuizQuestions[questionIndex].CorrectOption),
		SubmittedAt:    time.Now().UTC(),
	})
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode quiz answers: %w", err)
	}

	result := &SubmitResult{Module: module, Session: session, Action: ActionContinue}

	expected := module.Version
	module.QuizAnswers = datatypes.JSON(answersJSON)

	if len(answers) < len(content.QuizQuestions) {
		if err := ss.moduleRepo.UpdateVersioned(ctx, nil, module, expected); err != nil {
			return nil, err
		}
		return result, nil
	}

	// Last answer: score the module at this transition.
	scored, err := lifecycle.TransitionModule(module.Status, lifecycle.ModuleEventQuizCompleted)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrConflict)
	}
	scenarioScores := make([]float64, 0)
	var responses []types.ScenarioResponse
	if len(module.ScenarioResponses) > 0 {
		if err := json.Unmarshal(module.ScenarioResponses, &responses); err != nil {
			return nil, fmt.Errorf("decode scenario responses: %w", err)
		}
	}
	for _, r := range responses {
		scenarioScores = append(scenarioScores, r.Score)
	}
	quizScores := make([]float64, 0, len(answers))
	for _, a := range answers {
		quizScores = append(quizScores, a.Score)
	}

	module.Status = scored
	module.ModuleScore = scoring.ComputeModuleScore(scenarioScores, quizScores)
	if err := ss.moduleRepo.UpdateVersioned(ctx, nil, module, expected); err != nil {
		return nil, err
	}

	modules, err := ss.moduleRepo.GetBySession(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	for _, m := range modules {
		if m.Status != lifecycle.ModuleStatusScored {
			return result, nil
		}
	}

	action, err := ss.evaluate(ctx, session, modules)
	if err != nil {
		return nil, err
	}
	result.Evaluated = true
	result.Action = action
	return result, nil
}

// evaluate moves the session through evaluating to its verdict in one
// versioned write, so a racing evaluation loses cleanly at the version check.
func (ss *sessionService) evaluate(ctx context.Context, session *types.TrainingSession, modules []*types.TrainingModule) (string, error) {
	if _, err := lifecycle.Transition(session.Status, lifecycle.EventAllModulesScored); err != nil {
		return "", fmt.Errorf("%v: %w", err, errs.ErrConflict)
	}

	policy, err := ss.tenantConfig.TrainingPolicy(ctx, nil, session.TenantID)
	if err != nil {
		return "", err
	}

	moduleScores := make([]float64, 0, len(modules))
	results := make([]scoring.ModuleResult, 0, len(modules))
	for _, m := range modules {
		if m.ModuleScore == nil {
			return "", fmt.Errorf("module %d unscored: %w", m.ModuleIndex, errs.ErrConflict)
		}
		moduleScores = append(moduleScores, *m.ModuleScore)
		results = append(results, scoring.ModuleResult{TopicArea: m.TopicArea, Score: *m.ModuleScore})
	}

	aggregate := scoring.ComputeAggregateScore(moduleScores)
	if aggregate == nil {
		return "", fmt.Errorf("no module scores: %w", errs.ErrConflict)
	}

	var (
		event  string
		action string
	)
	switch {
	case scoring.IsPassing(*aggregate, policy.PassThreshold):
		event = lifecycle.EventEvaluationPassed
		action = ActionComplete
	case session.AttemptNumber >= policy.MaxAttempts:
		event = lifecycle.EventEvaluationExhausted
		action = ActionExhausted
	default:
		event = lifecycle.EventEvaluationFailed
		action = ActionRemediationAvailable
	}

	finalStatus, err := lifecycle.Transition(lifecycle.StatusEvaluating, event)
	if err != nil {
		return "", err
	}

	weakAreas := scoring.IdentifyWeakAreas(results, policy.PassThreshold)
	weakJSON, err := json.Marshal(weakAreas)
	if err != nil {
		return "", fmt.Errorf("encode weak areas: %w", err)
	}

	expected := session.Version
	session.Status = finalStatus
	session.AggregateScore = aggregate
	session.WeakAreas = datatypes.JSON(weakJSON)
	if lifecycle.IsTerminal(finalStatus) {
		now := time.Now().UTC()
		session.CompletedAt = &now
	}
	if err := ss.sessionRepo.UpdateVersioned(ctx, nil, session, expected); err != nil {
		return "", err
	}

	ss.audit.Record(ctx, nil, session.TenantID, &session.EmployeeID, AuditSessionEvaluated, map[string]interface{}{
		"session_id":      session.ID.String(),
		"status":          session.Status,
		"aggregate_score": *aggregate,
		"attempt_number":  session.AttemptNumber,
		"action":          action,
	})
	ss.log.Info("session evaluated", "session_id", session.ID, "status", session.Status, "aggregate_score", *aggregate, "action", action)

	if lifecycle.IsTerminal(session.Status) {
		if _, err := ss.evidence.GenerateForSession(ctx, session.TenantID, session.ID); err != nil {
			ss.log.Error("failed to generate evidence for terminal session", "session_id", session.ID, "error", err)
		}
	}
	return action, nil
}

// StartRemediation re-opens a failed session. The attempt number increments
// here, in the same versioned write as the status change; weak modules reset
// to learning with their answers cleared while strong ones keep their scores.
func (ss *sessionService) StartRemediation(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID) (*types.TrainingSession, error) {
	session, err := ss.loadOwnedSession(ctx, tenantID, employeeID, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Transition(session.Status, lifecycle.EventRemediationStarted)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrConflict)
	}

	var weakAreas []string
	if len(session.WeakAreas) > 0 {
		if err := json.Unmarshal(session.WeakAreas, &weakAreas); err != nil {
			return nil, fmt.Errorf("decode weak areas: %w", err)
		}
	}
	weak := make(map[string]bool, len(weakAreas))
	for _, area := range weakAreas {
		weak[area] = true
	}

	modules, err := ss.moduleRepo.GetBySession(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	err = ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expected := session.Version
		session.Status = next
		if lifecycle.IncrementsAttempt(lifecycle.EventRemediationStarted) {
			session.AttemptNumber++
		}
		if err := ss.sessionRepo.UpdateVersioned(ctx, tx, session, expected); err != nil {
			return err
		}

		for _, m := range modules {
			if !weak[m.TopicArea] {
				continue
			}
			mExpected := m.Version
			m.Status = lifecycle.ModuleStatusLearning
			m.ScenarioResponses = nil
			m.QuizAnswers = nil
			m.ModuleScore = nil
			if err := ss.moduleRepo.UpdateVersioned(ctx, tx, m, mExpected); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ss.audit.Record(ctx, nil, tenantID, &employeeID, AuditRemediationStarted, map[string]interface{}{
		"session_id":     sessionID.String(),
		"attempt_number": session.AttemptNumber,
		"weak_areas":     weakAreas,
	})
	return session, nil
}

// Abandon terminates an open session without a verdict and still produces
// evidence, with an unknown outcome.
func (ss *sessionService) Abandon(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID) (*types.TrainingSession, error) {
	session, err := ss.loadOwnedSession(ctx, tenantID, employeeID, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Transition(session.Status, lifecycle.EventSessionAbandoned)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrConflict)
	}

	expected := session.Version
	now := time.Now().UTC()
	session.Status = next
	session.CompletedAt = &now
	if err := ss.sessionRepo.UpdateVersioned(ctx, nil, session, expected); err != nil {
		return nil, err
	}

	ss.audit.Record(ctx, nil, tenantID, &employeeID, AuditSessionAbandoned, map[string]interface{}{
		"session_id": sessionID.String(),
	})

	if _, err := ss.evidence.GenerateForSession(ctx, tenantID, sessionID); err != nil {
		ss.log.Error("failed to generate evidence for abandoned session", "session_id", sessionID, "error", err)
	}
	return session, nil
}

func (ss *sessionService) loadOwnedSession(ctx context.Context, tenantID, employeeID, sessionID uuid.UUID) (*types.TrainingSession, error) {
	session, err := ss.sessionRepo.GetByID(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.EmployeeID != employeeID {
		return nil, errs.ErrUnauthorized
	}
	return session, nil
}

func (ss *sessionService) loadOpenModule(ctx context.Context, tenantID, sessionID uuid.UUID, moduleIndex int) (*types.TrainingModule, *types.ModuleContent, error) {
	module, err := ss.moduleRepo.GetBySessionAndIndex(ctx, nil, tenantID, sessionID, moduleIndex)
	if err != nil {
		return nil, nil, err
	}
	if len(module.Content) == 0 {
		return nil, nil, fmt.Errorf("module %d has no content: %w", moduleIndex, errs.ErrConflict)
	}
	var content types.ModuleContent
	if err := json.Unmarshal(module.Content, &content); err != nil {
		return nil, nil, fmt.Errorf("decode module content: %w", err)
	}
	return module, &content, nil
}

func moduleAt(modules []*types.TrainingModule, index int) *types.TrainingModule {
	for _, m := range modules {
		if m.ModuleIndex == index {
			return m
		}
	}
	return nil
}
