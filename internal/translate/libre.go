package translate

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/resilience"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

const (
	DefaultLibreURL     = "https://api.libretranslate.de"
	DefaultLibreTimeout = 30 * time.Second

	maxErrorBody = 512
)

type LibreOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// Libre is a LibreTranslate client.
type Libre struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText *string `json:"translatedText"`
	Error          string  `json:"error"`
}

func NewLibre(opts LibreOptions) *Libre {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultLibreURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLibreTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Libre{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    client,
		breaker: resilience.New(resilience.TranslationConfig()),
		retry:   resilience.TranslationRetryConfig(opts.Retries),
	}
}

// Breaker exposes the circuit breaker for status reporting.
func (l *Libre) Breaker() *resilience.Breaker { return l.breaker }

func (l *Libre) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == "" {
		source = model.AutoDetect
	}
	body, err := json.Marshal(libreRequest{Q: text, Source: source, Target: target, Format: "text", APIKey: l.apiKey})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "encode translate request")
	}

	return resilience.ExecuteWithResult(l.breaker, func() (string, error) {
		return resilience.RetryWithResult(ctx, l.retry, func() (string, error) {
			return l.post(ctx, body)
		})
	})
}

func (l *Libre) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "create translate request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tc, ok := trace.FromContext(ctx); ok {
		trace.Inject(req, tc)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.Canceled) {
			return "", apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "translate request cancelled")
		}
		var netErr interface{ Timeout() bool }
		if (stderrors.As(err, &netErr) && netErr.Timeout()) || stderrors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.Wrap(err, apperrors.TranslationTimeout, "translate request timed out")
		}
		return "", apperrors.Wrap(err, apperrors.TranslationFailed, "translate request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.TranslationFailed, "read translate response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := apperrors.TranslationFailed
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden {
			code = apperrors.TranslationInvalidResponse
		}
		return "", apperrors.Newf(code, "translate returned %d: %s", resp.StatusCode, truncate(data, maxErrorBody)).
			WithMetadata("status", fmt.Sprint(resp.StatusCode))
	}

	var out libreResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", apperrors.Wrap(err, apperrors.TranslationInvalidResponse, "decode translate response")
	}
	if out.TranslatedText == nil || *out.TranslatedText == "" {
		return "", apperrors.New(apperrors.TranslationInvalidResponse, "translate response has no translatedText")
	}
	return *out.TranslatedText, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.TrimSpace(string(b))
}
