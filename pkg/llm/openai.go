package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/loglens/loglens/pkg/metrics"
	"github.com/loglens/loglens/pkg/models"
)

const (
	// requestTimeout bounds one completion round trip.
	requestTimeout = 120 * time.Second

	// temperature keeps scoring near-deterministic.
	temperature = 0.1

	defaultBaseURL = "https://api.openai.com/v1"
)

// ErrNotConfigured is returned when a call is attempted without an API key.
var ErrNotConfigured = errors.New("llm: no API key configured")

// OpenAIClient is an OpenAI-compatible chat-completions client. A circuit
// breaker sheds calls after repeated upstream failures and a rate limiter
// spaces requests under the provider budget.
type OpenAIClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

// NewOpenAIClient creates the client. requestsPerMinute <= 0 disables rate
// limiting.
func NewOpenAIClient(requestsPerMinute int) *OpenAIClient {
	c := &OpenAIClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "llm",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("LLM circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
	}
	if requestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// chat performs one completion call and returns the raw content plus usage.
func (c *OpenAIClient) chat(ctx context.Context, creds Credentials, system, user string) (string, Usage, error) {
	if creds.APIKey == "" {
		return "", Usage{}, ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", Usage{}, err
		}
	}

	baseURL := strings.TrimSuffix(creds.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	body := chatRequest{
		Model: creds.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to encode chat request: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("chat completion request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read chat response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, truncateForLog(raw))
		}
		var parsed chatResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode chat response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("chat completion error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, errors.New("chat completion returned no choices")
		}
		return &parsed, nil
	})
	if err != nil {
		return "", Usage{}, err
	}

	parsed := result.(*chatResponse)
	usage := Usage{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		Requests:     1,
	}
	return parsed.Choices[0].Message.Content, usage, nil
}

// ScoreEvents asks the model for six floats per event. The returned matrix is
// padded or truncated to len(req.Events) rows of models.CriterionCount.
func (c *OpenAIClient) ScoreEvents(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	system := req.SystemPrompt
	if system == "" {
		system = DefaultScoringPrompt
	}
	system = substituteCriterionGuides(system, req.CriterionGuides)
	user := buildScoringUserPrompt(req)

	content, usage, err := c.chat(ctx, req.Creds, system, user)
	recordCall("scoring", usage, err)
	if err != nil {
		return nil, err
	}

	scores, err := ParseScores(content, len(req.Events))
	if err != nil {
		return nil, err
	}
	return &ScoreResponse{Scores: scores, Usage: usage}, nil
}

// MetaAnalyze asks the model for window scores, a summary and finding
// lifecycle decisions.
func (c *OpenAIClient) MetaAnalyze(ctx context.Context, req MetaRequest) (*MetaResponse, error) {
	system := req.SystemPrompt
	if system == "" {
		system = DefaultMetaPrompt
	}
	if req.AckPrompt != "" {
		system += "\n\n" + req.AckPrompt
	}
	user := buildMetaUserPrompt(req)

	content, usage, err := c.chat(ctx, req.Creds, system, user)
	recordCall("meta", usage, err)
	if err != nil {
		return nil, err
	}

	resp, err := ParseMetaResponse(content)
	if err != nil {
		return nil, err
	}
	resp.Usage = usage
	return resp, nil
}

func recordCall(task string, usage Usage, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequests.WithLabelValues(task, status).Inc()
	metrics.LLMTokens.WithLabelValues(task, "input").Add(float64(usage.InputTokens))
	metrics.LLMTokens.WithLabelValues(task, "output").Add(float64(usage.OutputTokens))
}

func truncateForLog(raw []byte) string {
	s := string(raw)
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}

var _ Client = (*OpenAIClient)(nil)

// criterionSlugs in catalogue order, used by prompts and parsing.
func criterionSlugs() []string {
	slugs := make([]string, 0, models.CriterionCount)
	for _, c := range models.Criteria {
		slugs = append(slugs, c.Slug)
	}
	return slugs
}
