package contentai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/httpx"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
	"github.com/attestra/attestra-backend/internal/utils"
)

// Client generates curricula and module content and grades free-text
// scenario responses. All calls are synchronous; callers own timeouts
// through ctx. Exhausted transport retries surface as errs.ErrUnavailable.
type Client interface {
	GenerateCurriculum(ctx context.Context, req GenerateCurriculumRequest) (*types.CurriculumOutline, error)
	GenerateModuleContent(ctx context.Context, req GenerateModuleContentRequest) (*types.ModuleContent, error)
	EvaluateScenario(ctx context.Context, req EvaluateScenarioRequest) (*ScenarioEvaluation, error)
}

type GenerateCurriculumRequest struct {
	TenantSlug      string   `json:"tenant_slug"`
	RoleProfileID   string   `json:"role_profile_id"`
	RoleProfileVer  int      `json:"role_profile_version"`
	JobExpectations []string `json:"job_expectations"`
	ModuleCount     int      `json:"module_count,omitempty"`
}

type GenerateModuleContentRequest struct {
	TenantSlug      string   `json:"tenant_slug"`
	RoleProfileID   string   `json:"role_profile_id"`
	ModuleTitle     string   `json:"module_title"`
	TopicArea       string   `json:"topic_area"`
	JobExpectations []string `json:"job_expectations"`
}

type EvaluateScenarioRequest struct {
	TenantSlug   string `json:"tenant_slug"`
	ScenarioText string `json:"scenario_text"`
	Response     string `json:"response"`
	TopicArea    string `json:"topic_area"`
}

// ScenarioEvaluation carries a score in [0,1] and the grader's rationale.
type ScenarioEvaluation struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv(log *logger.Logger) Config {
	timeoutSec := utils.GetEnvAsInt("CONTENTAI_TIMEOUT_SECONDS", 60, log)
	maxRetries := utils.GetEnvAsInt("CONTENTAI_MAX_RETRIES", 3, log)
	return Config{
		APIKey:     strings.TrimSpace(os.Getenv("CONTENTAI_API_KEY")),
		BaseURL:    strings.TrimSpace(os.Getenv("CONTENTAI_BASE_URL")),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: maxRetries,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv(log))
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing CONTENTAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing CONTENTAI_BASE_URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &client{
		log:        log.With("client", "ContentAIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func (c *client) GenerateCurriculum(ctx context.Context, req GenerateCurriculumRequest) (*types.CurriculumOutline, error) {
	if req.RoleProfileID == "" {
		return nil, fmt.Errorf("role profile required: %w", errs.ErrInvalidArgument)
	}
	var out types.CurriculumOutline
	if err := c.post(ctx, "/v1/curriculum", req, &out); err != nil {
		return nil, err
	}
	if len(out.Modules) == 0 {
		return nil, fmt.Errorf("empty curriculum: %w", errs.ErrUnavailable)
	}
	return &out, nil
}

func (c *client) GenerateModuleContent(ctx context.Context, req GenerateModuleContentRequest) (*types.ModuleContent, error) {
	if req.ModuleTitle == "" {
		return nil, fmt.Errorf("module title required: %w", errs.ErrInvalidArgument)
	}
	var out types.ModuleContent
	if err := c.post(ctx, "/v1/module-content", req, &out); err != nil {
		return nil, err
	}
	if len(out.QuizQuestions) == 0 && len(out.Scenarios) == 0 {
		return nil, fmt.Errorf("empty module content: %w", errs.ErrUnavailable)
	}
	return &out, nil
}

func (c *client) EvaluateScenario(ctx context.Context, req EvaluateScenarioRequest) (*ScenarioEvaluation, error) {
	if req.Response == "" {
		return nil, fmt.Errorf("response required: %w", errs.ErrInvalidArgument)
	}
	var out ScenarioEvaluation
	if err := c.post(ctx, "/v1/evaluate-scenario", req, &out); err != nil {
		return nil, err
	}
	if out.Score < 0 || out.Score > 1 {
		return nil, fmt.Errorf("grader score out of range: %.4f: %w", out.Score, errs.ErrUnavailable)
	}
	return &out, nil
}

func (c *client) post(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			sleep := httpx.JitterSleep(time.Duration(attempt) * time.Second)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(raw, dest); err != nil {
				return fmt.Errorf("decode %s response: %w", path, err)
			}
			return nil
		}

		if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("content service %s returned %d: %s: %w",
				path, resp.StatusCode, truncate(raw, 200), errs.ErrInternal)
		}
		lastErr = fmt.Errorf("content service %s returned %d", path, resp.StatusCode)
	}

	c.log.Warn("content service unavailable", "path", path, "error", lastErr)
	return fmt.Errorf("content service %s: %v: %w", path, lastErr, errs.ErrUnavailable)
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
