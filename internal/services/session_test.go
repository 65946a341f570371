package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/attestra/attestra-backend/internal/lifecycle"
	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/types"
)

type fakeEvidenceSvc struct {
	mu        sync.Mutex
	generated []uuid.UUID
}

func (f *fakeEvidenceSvc) GenerateForSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, sessionID)
	return &types.TrainingEvidence{ID: uuid.New(), TenantID: tenantID, SessionID: sessionID}, nil
}

func (f *fakeEvidenceSvc) GetBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error) {
	return nil, errs.ErrNotFound
}

func (f *fakeEvidenceSvc) VerifyContentHash(evidence *types.TrainingEvidence) (bool, error) {
	return true, nil
}

func (f *fakeEvidenceSvc) generatedFor(sessionID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.generated {
		if id == sessionID {
			return true
		}
	}
	return false
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

type sessionFixture struct {
	svc        SessionService
	sessions   *fakeSessionRepo
	modules    *fakeModuleRepo
	employees  *fakeEmployeeRepo
	content    *fakeContent
	evidence   *fakeEvidenceSvc
	audit      *fakeAudit
	policy     *fakeTenantConfig
	tenantID   uuid.UUID
	employeeID uuid.UUID
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		sessions:   newFakeSessionRepo(),
		modules:    newFakeModuleRepo(),
		employees:  newFakeEmployeeRepo(),
		evidence:   &fakeEvidenceSvc{},
		audit:      &fakeAudit{},
		tenantID:   uuid.New(),
		employeeID: uuid.New(),
	}
	f.policy = &fakeTenantConfig{
		tenant: &types.Tenant{ID: f.tenantID, Slug: "acme", DisplayName: "Acme Corp"},
		policy: TrainingPolicy{PassThreshold: 0.7, MaxAttempts: 3},
	}
	f.content = &fakeContent{
		curriculum: &types.CurriculumOutline{Modules: []types.ModuleOutline{
			{Title: "Handling incidents", TopicArea: "incident-response", JobExpectationIndices: []int{0}},
			{Title: "Data privacy basics", TopicArea: "data-privacy", JobExpectationIndices: []int{1}},
		}},
		moduleContent: &types.ModuleContent{
			LearningPoints: []string{"stay calm"},
			Scenarios:      []types.Scenario{{Prompt: "A customer reports a breach."}},
			QuizQuestions: []types.QuizQuestion{
				{Question: "First step?", Options: []string{"A", "B"}, CorrectOption: "B"},
			},
		},
		scenarioScore: 0.9,
	}

	f.employees.Create(context.Background(), nil, &types.Employee{
		ID:            f.employeeID,
		TenantID:      f.tenantID,
		Email:         "pat@acme.test",
		FirstName:     "Pat",
		LastName:      "Reyes",
		RoleProfileID: "analyst",
	})

	f.svc = NewSessionService(testDB(t), testLogger(t), f.sessions, f.modules, f.employees,
		f.policy, f.content, f.evidence, f.audit, "1.0.0")
	return f
}

// seedSession plants a session and modules directly, bypassing generation.
func (f *sessionFixture) seedSession(t *testing.T, status string, attempt int, modules ...*types.TrainingModule) *types.TrainingSession {
	t.Helper()
	session := &types.TrainingSession{
		ID:                 uuid.New(),
		TenantID:           f.tenantID,
		EmployeeID:         f.employeeID,
		RoleProfileID:      "analyst",
		RoleProfileVersion: 1,
		PolicyConfigHash:   "testpolicyhash",
		AppVersion:         "1.0.0",
		Status:             status,
		AttemptNumber:      attempt,
		Version:            1,
		CreatedAt:          time.Now().UTC(),
	}
	if _, err := f.sessions.Create(context.Background(), nil, session); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for _, m := range modules {
		m.TenantID = f.tenantID
		m.SessionID = session.ID
	}
	if len(modules) > 0 {
		if _, err := f.modules.Create(context.Background(), nil, modules); err != nil {
			t.Fatalf("seed modules: %v", err)
		}
	}
	return session
}

func quizModule(index int, scenarioScores []float64, questions int) *types.TrainingModule {
	responses := make([]types.ScenarioResponse, 0, len(scenarioScores))
	scenarios := make([]types.Scenario, 0, len(scenarioScores))
	for i, s := range scenarioScores {
		responses = append(responses, types.ScenarioResponse{ScenarioIndex: i, Response: "answer", Score: s, SubmittedAt: time.Now().UTC()})
		scenarios = append(scenarios, types.Scenario{Prompt: "scenario"})
	}
	qs := make([]types.QuizQuestion, 0, questions)
	for i := 0; i < questions; i++ {
		qs = append(qs, types.QuizQuestion{Question: "Q", Options: []string{"A", "B"}, CorrectOption: "B"})
	}
	content, _ := json.Marshal(types.ModuleContent{Scenarios: scenarios, QuizQuestions: qs})
	responsesJSON, _ := json.Marshal(responses)
	return &types.TrainingModule{
		ID:                uuid.New(),
		ModuleIndex:       index,
		Title:             "Module",
		TopicArea:         "incident-response",
		Status:            lifecycle.ModuleStatusQuizActive,
		Content:           datatypes.JSON(content),
		ScenarioResponses: datatypes.JSON(responsesJSON),
		Version:           1,
	}
}

func scoredModule(index int, score float64, topicArea string) *types.TrainingModule {
	content, _ := json.Marshal(types.ModuleContent{
		QuizQuestions: []types.QuizQuestion{{Question: "Q", Options: []string{"A", "B"}, CorrectOption: "B"}},
	})
	return &types.TrainingModule{
		ID:          uuid.New(),
		ModuleIndex: index,
		Title:       "Module",
		TopicArea:   topicArea,
		Status:      lifecycle.ModuleStatusScored,
		Content:     datatypes.JSON(content),
		ModuleScore: &score,
		Version:     1,
	}
}

func TestStartSessionGeneratesCurriculum(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, modules, err := f.svc.StartSession(ctx, f.tenantID, f.employeeID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if session.Status != lifecycle.StatusInProgress {
		t.Fatalf("status: want=in_progress got=%s", session.Status)
	}
	if session.AttemptNumber != 1 {
		t.Fatalf("attempt: want=1 got=%d", session.AttemptNumber)
	}
	if session.PolicyConfigHash != "testpolicyhash" {
		t.Fatalf("policy hash: got=%s", session.PolicyConfigHash)
	}
	if len(modules) != 2 {
		t.Fatalf("modules: want=2 got=%d", len(modules))
	}
	for i, m := range modules {
		if m.ModuleIndex != i {
			t.Fatalf("module %d index: got=%d", i, m.ModuleIndex)
		}
		if m.Status != lifecycle.ModuleStatusLocked {
			t.Fatalf("module %d status: want=locked got=%s", i, m.Status)
		}
	}
	if !f.audit.has(AuditSessionStarted) {
		t.Fatal("missing session.started audit event")
	}

	// One active session per employee.
	if _, _, err := f.svc.StartSession(ctx, f.tenantID, f.employeeID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("second start: want=ErrConflict got=%v", err)
	}
}

func TestStartSessionPersistsGeneratingState(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	// While the curriculum call is in flight the attempt must already be
	// durable, in the generating state.
	var observed string
	f.content.onGenerateCurriculum = func() {
		rows, err := f.sessions.ListByEmployee(ctx, nil, f.tenantID, f.employeeID)
		if err != nil || len(rows) != 1 {
			t.Errorf("sessions during generation: want=1 got=%d (%v)", len(rows), err)
			return
		}
		observed = rows[0].Status
	}

	session, _, err := f.svc.StartSession(ctx, f.tenantID, f.employeeID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if observed != lifecycle.StatusCurriculumGenerating {
		t.Fatalf("status during generation: want=curriculum_generating got=%s", observed)
	}

	stored, err := f.sessions.GetByID(ctx, nil, f.tenantID, session.ID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if stored.Status != lifecycle.StatusInProgress {
		t.Fatalf("stored status: want=in_progress got=%s", stored.Status)
	}
}

func TestStartSessionCleansUpFailedGeneration(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.content.curriculum = nil

	if _, _, err := f.svc.StartSession(ctx, f.tenantID, f.employeeID); err == nil {
		t.Fatal("want generation error")
	}
	rows, err := f.sessions.ListByEmployee(ctx, nil, f.tenantID, f.employeeID)
	if err != nil {
		t.Fatalf("ListByEmployee: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("failed generation left %d session rows behind", len(rows))
	}

	// The employee is not blocked from trying again.
	f.content.curriculum = &types.CurriculumOutline{Modules: []types.ModuleOutline{
		{Title: "Handling incidents", TopicArea: "incident-response", JobExpectationIndices: []int{0}},
	}}
	session, modules, err := f.svc.StartSession(ctx, f.tenantID, f.employeeID)
	if err != nil {
		t.Fatalf("retry StartSession: %v", err)
	}
	if session.Status != lifecycle.StatusInProgress || len(modules) != 1 {
		t.Fatalf("retry: status=%s modules=%d", session.Status, len(modules))
	}
}

func TestOpenModuleEnforcesOrder(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := f.svc.StartSession(ctx, f.tenantID, f.employeeID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if _, err := f.svc.OpenModule(ctx, f.tenantID, f.employeeID, session.ID, 1); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("out-of-order open: want=ErrConflict got=%v", err)
	}

	module, err := f.svc.OpenModule(ctx, f.tenantID, f.employeeID, session.ID, 0)
	if err != nil {
		t.Fatalf("OpenModule: %v", err)
	}
	if module.Status != lifecycle.ModuleStatusLearning {
		t.Fatalf("status: want=learning got=%s", module.Status)
	}
	if len(module.Content) == 0 {
		t.Fatal("module content not stored")
	}

	// Re-opening an unlocked module is an illegal transition.
	if _, err := f.svc.OpenModule(ctx, f.tenantID, f.employeeID, session.ID, 0); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("re-open: want=ErrConflict got=%v", err)
	}
}

func TestScenarioSubmissionFlow(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := f.svc.StartSession(ctx, f.tenantID, f.employeeID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := f.svc.OpenModule(ctx, f.tenantID, f.employeeID, session.ID, 0); err != nil {
		t.Fatalf("OpenModule: %v", err)
	}

	module, err := f.svc.SubmitScenarioResponse(ctx, f.tenantID, f.employeeID, session.ID, 0, 0, "isolate the account and notify security")
	if err != nil {
		t.Fatalf("SubmitScenarioResponse: %v", err)
	}
	// The fixture content has one scenario, so the first answer is the last.
	if module.Status != lifecycle.ModuleStatusQuizActive {
		t.Fatalf("status: want=quiz_active got=%s", module.Status)
	}

	var responses []types.ScenarioResponse
	if err := json.Unmarshal(module.ScenarioResponses, &responses); err != nil {
		t.Fatalf("decode responses: %v", err)
	}
	if len(responses) != 1 || responses[0].Score != 0.9 {
		t.Fatalf("responses: got=%+v", responses)
	}

	_, err = f.svc.SubmitScenarioResponse(ctx, f.tenantID, f.employeeID, session.ID, 0, 0, "again")
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate scenario answer: want=ErrConflict got=%v", err)
	}
}

func TestEvaluationPasses(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	// Module 0 already scored 0.85; module 1 carries a 0.2 scenario and one
	// quiz question, so a correct answer lands it at 0.6. Mean is 0.725.
	session := f.seedSession(t, lifecycle.StatusInProgress, 1,
		scoredModule(0, 0.85, "incident-response"),
		quizModule(1, []float64{0.2}, 1),
	)

	result, err := f.svc.SubmitQuizAnswer(ctx, f.tenantID, f.employeeID, session.ID, 1, 0, "B")
	if err != nil {
		t.Fatalf("SubmitQuizAnswer: %v", err)
	}
	if !result.Evaluated {
		t.Fatal("expected evaluation to run")
	}
	if result.Action != ActionComplete {
		t.Fatalf("action: want=%s got=%s", ActionComplete, result.Action)
	}

	stored, err := f.sessions.GetByID(ctx, nil, f.tenantID, session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if stored.Status != lifecycle.StatusPassed {
		t.Fatalf("status: want=passed got=%s", stored.Status)
	}
	if stored.AggregateScore == nil || math.Abs(*stored.AggregateScore-0.725) > 1e-9 {
		t.Fatalf("aggregate score: want=0.725 got=%v", stored.AggregateScore)
	}
	if stored.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if !f.evidence.generatedFor(session.ID) {
		t.Fatal("evidence not generated for passed session")
	}
}

func TestEvaluationRemediationAvailable(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	// One 0.8 scenario plus a wrong quiz answer scores the module at 0.4.
	session := f.seedSession(t, lifecycle.StatusInProgress, 1,
		quizModule(0, []float64{0.8}, 1),
	)

	result, err := f.svc.SubmitQuizAnswer(ctx, f.tenantID, f.employeeID, session.ID, 0, 0, "A")
	if err != nil {
		t.Fatalf("SubmitQuizAnswer: %v", err)
	}
	if result.Action != ActionRemediationAvailable {
		t.Fatalf("action: want=%s got=%s", ActionRemediationAvailable, result.Action)
	}

	stored, _ := f.sessions.GetByID(ctx, nil, f.tenantID, session.ID)
	if stored.Status != lifecycle.StatusFailed {
		t.Fatalf("status: want=failed got=%s", stored.Status)
	}
	var weak []string
	if err := json.Unmarshal(stored.WeakAreas, &weak); err != nil {
		t.Fatalf("decode weak areas: %v", err)
	}
	if len(weak) != 1 || weak[0] != "incident-response" {
		t.Fatalf("weak areas: got=%v", weak)
	}
	if stored.CompletedAt != nil {
		t.Fatal("failed session must stay open for remediation")
	}
	if f.evidence.generatedFor(session.ID) {
		t.Fatal("evidence generated for non-terminal session")
	}
}

func TestEvaluationExhaustsAttempts(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session := f.seedSession(t, lifecycle.StatusInProgress, 3,
		quizModule(0, []float64{0.8}, 1),
	)

	result, err := f.svc.SubmitQuizAnswer(ctx, f.tenantID, f.employeeID, session.ID, 0, 0, "A")
	if err != nil {
		t.Fatalf("SubmitQuizAnswer: %v", err)
	}
	if result.Action != ActionExhausted {
		t.Fatalf("action: want=%s got=%s", ActionExhausted, result.Action)
	}

	stored, _ := f.sessions.GetByID(ctx, nil, f.tenantID, session.ID)
	if stored.Status != lifecycle.StatusExhausted {
		t.Fatalf("status: want=exhausted got=%s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatal("completed_at not set on exhausted session")
	}
	if !f.evidence.generatedFor(session.ID) {
		t.Fatal("evidence not generated for exhausted session")
	}
}

func TestStartRemediationResetsWeakModules(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	weak := quizModule(0, []float64{0.2}, 1)
	weak.Status = lifecycle.ModuleStatusScored
	lowScore := 0.2
	weak.ModuleScore = &lowScore
	strong := scoredModule(1, 0.9, "data-privacy")

	session := f.seedSession(t, lifecycle.StatusFailed, 1, weak, strong)
	session.WeakAreas = datatypes.JSON([]byte(`["incident-response"]`))
	if err := f.sessions.UpdateVersioned(ctx, nil, session, 1); err != nil {
		t.Fatalf("seed weak areas: %v", err)
	}

	updated, err := f.svc.StartRemediation(ctx, f.tenantID, f.employeeID, session.ID)
	if err != nil {
		t.Fatalf("StartRemediation: %v", err)
	}
	if updated.Status != lifecycle.StatusInRemediation {
		t.Fatalf("status: want=in_remediation got=%s", updated.Status)
	}
	if updated.AttemptNumber != 2 {
		t.Fatalf("attempt: want=2 got=%d", updated.AttemptNumber)
	}

	weakStored, _ := f.modules.GetBySessionAndIndex(ctx, nil, f.tenantID, session.ID, 0)
	if weakStored.Status != lifecycle.ModuleStatusLearning {
		t.Fatalf("weak module status: want=learning got=%s", weakStored.Status)
	}
	if weakStored.ModuleScore != nil || len(weakStored.QuizAnswers) != 0 || len(weakStored.ScenarioResponses) != 0 {
		t.Fatal("weak module answers not cleared")
	}

	strongStored, _ := f.modules.GetBySessionAndIndex(ctx, nil, f.tenantID, session.ID, 1)
	if strongStored.Status != lifecycle.ModuleStatusScored || strongStored.ModuleScore == nil {
		t.Fatal("strong module must keep its score")
	}

	// Remediation is only reachable from failed.
	if _, err := f.svc.StartRemediation(ctx, f.tenantID, f.employeeID, session.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("double remediation: want=ErrConflict got=%v", err)
	}
}

func TestAbandonSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session := f.seedSession(t, lifecycle.StatusInProgress, 1)

	updated, err := f.svc.Abandon(ctx, f.tenantID, f.employeeID, session.ID)
	if err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if updated.Status != lifecycle.StatusAbandoned {
		t.Fatalf("status: want=abandoned got=%s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if !f.evidence.generatedFor(session.ID) {
		t.Fatal("evidence not generated for abandoned session")
	}

	if _, err := f.svc.Abandon(ctx, f.tenantID, f.employeeID, session.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("abandoning a terminal session: want=ErrConflict got=%v", err)
	}
}

func TestSessionOwnership(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session := f.seedSession(t, lifecycle.StatusInProgress, 1)

	if _, err := f.svc.Abandon(ctx, f.tenantID, uuid.New(), session.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("foreign employee: want=ErrUnauthorized got=%v", err)
	}
	if _, _, err := f.svc.GetSession(ctx, uuid.New(), f.employeeID, session.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("foreign tenant: want=ErrNotFound got=%v", err)
	}
}
