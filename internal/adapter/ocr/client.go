// Package ocr recognizes Korean text in timetable images via a CLOVA-style
// OCR HTTP API. Blog and SNS sources publish free-swim timetables as images,
// so the scraped page text alone often misses the actual schedule.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poolhopper/freeswim-etl/internal/domain"
)

// language is fixed: the facility catalog is Korean-only.
const language = "ko"

// Client implements image text recognition against an OCR HTTP endpoint.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an OCR client. endpoint and secret come from the
// service's OCR gateway configuration.
func NewClient(endpoint, secret string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Recognize submits one image URL and returns the recognized text, reading
// order preserved. All failures are reported as *domain.OcrError; callers
// are expected to drop the image and continue.
func (c *Client) Recognize(ctx context.Context, imageURL string) (string, error) {
	reqBody := request{
		Version:   "V2",
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Lang:      language,
		Images: []requestImage{
			{Format: imageFormat(imageURL), Name: "schedule", URL: imageURL},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &domain.OcrError{ImageURL: imageURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &domain.OcrError{ImageURL: imageURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OCR-SECRET", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.OcrError{ImageURL: imageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &domain.OcrError{
			ImageURL: imageURL,
			Err:      fmt.Errorf("ocr API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var ocrResp response
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return "", &domain.OcrError{ImageURL: imageURL, Err: fmt.Errorf("decode response: %w", err)}
	}

	text := joinFields(ocrResp)
	c.logger.Debug("image recognized", "image_url", imageURL, "text_len", len(text))
	return text, nil
}

// joinFields concatenates the per-field inferred text in API order, which
// follows reading order for tabular timetable images.
func joinFields(r response) string {
	var parts []string
	for _, img := range r.Images {
		for _, f := range img.Fields {
			if t := strings.TrimSpace(f.InferText); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func imageFormat(imageURL string) string {
	lower := strings.ToLower(imageURL)
	switch {
	case strings.Contains(lower, ".png"):
		return "png"
	case strings.Contains(lower, ".gif"):
		return "gif"
	default:
		return "jpg"
	}
}

// OCR gateway request/response types.

type request struct {
	Version   string         `json:"version"`
	RequestID string         `json:"requestId"`
	Timestamp int64          `json:"timestamp"`
	Lang      string         `json:"lang"`
	Images    []requestImage `json:"images"`
}

type requestImage struct {
	Format string `json:"format"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

type response struct {
	Images []responseImage `json:"images"`
}

type responseImage struct {
	Fields []responseField `json:"fields"`
}

type responseField struct {
	InferText string `json:"inferText"`
}
