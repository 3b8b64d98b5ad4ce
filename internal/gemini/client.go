package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davuth-chan/khmerscribe/internal/config"
)

// Client calls the Generative Language API's generateContent endpoint with
// one image part and one text part per request.
type Client struct {
	cfg        config.GeminiConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg config.GeminiConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends prompt plus the PNG image to the named model and returns the
// response text. Failures come back as *APIError with a FailureKind.
func (c *Client) Generate(ctx context.Context, model, prompt string, png []byte) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body := generateRequest{Contents: []generateContent{{
		Parts: []generatePart{
			{Text: prompt},
			{InlineData: &inlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(png),
			}},
		},
	}}}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	c.logger.Info("gemini.request",
		"req_id", reqID,
		"model", model,
		"image_bytes", len(png),
		"prompt_len", len(prompt),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gemini.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &APIError{Kind: FailureTransient, Message: err.Error()}
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.logger.Warn("gemini.body_close_error", "req_id", reqID, "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	c.logger.Info("gemini.response",
		"req_id", reqID,
		"model", model,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, raw)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", classifyStatus(out.Error.Code, raw)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &APIError{Kind: FailureTransient, StatusCode: resp.StatusCode, Message: "empty candidates"}
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// classifyStatus maps an HTTP status plus error body to a FailureKind. A 429
// whose body mentions a per-day quota is terminal quota exhaustion; any other
// 429 is a rate limit the caller may back off from.
func classifyStatus(status int, raw []byte) *APIError {
	msg := string(raw)
	switch {
	case status == http.StatusTooManyRequests:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "perday") || strings.Contains(lower, "per_day") ||
			strings.Contains(lower, "per day") || strings.Contains(lower, "daily") {
			return &APIError{Kind: FailureQuotaExhausted, StatusCode: status, Message: msg}
		}
		return &APIError{Kind: FailureRateLimited, StatusCode: status, Message: msg}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &APIError{Kind: FailureUnauthorized, StatusCode: status, Message: msg}
	case status >= 500:
		return &APIError{Kind: FailureTransient, StatusCode: status, Message: msg}
	default:
		// Unexpected client errors are not retryable and not quota; treat as
		// transient so the retry ceiling surfaces them quickly.
		return &APIError{Kind: FailureTransient, StatusCode: status, Message: msg}
	}
}
