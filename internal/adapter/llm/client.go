// Package llm asks a chat-completion model to turn scraped free-swim page
// text into structured schedule rows. The model reply is returned raw; the
// domain sanitizer/parser owns decoding it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/poolhopper/freeswim-etl/internal/domain"
	"github.com/poolhopper/freeswim-etl/internal/observability"
)

// instructionTemplate fixes the extraction contract: single-visit pricing
// only, the ~20,000 KRW single-visit ceiling, every fee tier in a time slot
// listed separately, an empty JSON array for closed or serviceless pools,
// and whole-record omission when day, time or fee cannot be determined.
const instructionTemplate = `<content></content> 내용을 참고해서 자유 수영에 대한 정보를 정리해줘.

규칙:
1. 1회 이용(자유 수영 1회권)에 대한 정보만 정리해줘. 회원권, 강습, 월 이용권은 제외해줘.
2. 보통 1회 이용료는 20,000원이 넘지 않아. 넘는 금액은 1회권이 아니므로 제외해줘.
3. 같은 시간대에 요금이 상이하면, 상이한대로 시간과 함께 구별해서 모두 표기해줘.
4. 요일(day), 시간(time_range), 요금 중 하나라도 알 수 없으면 그 항목은 통째로 빼줘.
5. 휴관, 휴장, 자유 수영 미운영이 명시되어 있으면 빈 배열 []만 돌려줘.
6. 자유 수영 정보 이외의 추가 설명은 하지 않아도 돼. JSON만 출력해줘.

<example>
[
    {
        "day": "화",
        "time_range": "08:00-08:50",
        "adult_fee": 9000,
        "teen_fee": 5000
    }
]
</example>

<content>
%s
</content>
`

// Config tunes the extraction client. Zero values fall back to the
// defaults below.
type Config struct {
	APIKey       string
	BaseURL      string // override for tests and proxies
	Model        string
	Temperature  float32
	MaxAttempts  int           // total attempts, including the first
	RetryBackoff time.Duration // fixed pause between rate-limited attempts
}

const (
	defaultModel        = openai.GPT4oMini
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 2000 * time.Millisecond
)

// Client wraps a chat-completion API with the fixed free-swim instruction
// and a bounded rate-limit retry policy.
type Client struct {
	api          *openai.Client
	model        string
	temperature  float32
	maxAttempts  int
	retryBackoff time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewClient creates an extraction client from cfg.
func NewClient(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	return &Client{
		api:          openai.NewClientWithConfig(apiCfg),
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		logger:       logger,
		metrics:      metrics,
	}
}

// Extract sends the page text and any OCR supplement to the model and
// returns the raw reply text. Rate-limit-class failures are retried up to
// the attempt budget with a fixed pause; any other failure raises
// immediately. Exhausting the budget raises *domain.ExtractionError so
// callers can tell "gave up after retrying" from "failed once".
func (c *Client) Extract(ctx context.Context, pageText, ocrText string) (string, error) {
	prompt := buildPrompt(pageText, ocrText)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.metrics.ModelRequests.Inc()
		reply, err := c.complete(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if !isRateLimited(err) {
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}

		c.metrics.ModelRetries.Inc()
		c.logger.Warn("model rate limited, backing off",
			"attempt", attempt, "backoff", c.retryBackoff, "error", err)
		if !sleepWithContext(ctx, c.retryBackoff) {
			return "", ctx.Err()
		}
	}

	return "", &domain.ExtractionError{Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices from model")
	}
	return resp.Choices[0].Message.Content, nil
}

// buildPrompt assembles the fixed instruction around the scraped content.
// OCR text, when present, is appended under its own marker so the model
// sees it as part of the same page.
func buildPrompt(pageText, ocrText string) string {
	content := pageText
	if strings.TrimSpace(ocrText) != "" {
		content += "\n\n[이미지 인식 텍스트]\n" + ocrText
	}
	return fmt.Sprintf(instructionTemplate, content)
}

// isRateLimited reports whether err carries a 429-class signature, the only
// failure class worth retrying.
func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}

// sleepWithContext pauses for d, returning false if ctx is cancelled first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
