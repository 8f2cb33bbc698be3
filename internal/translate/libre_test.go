package translate

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
)

func TestLibreTranslate(t *testing.T) {
	var got libreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/translate" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translatedText":"Halo"}`))
	}))
	defer srv.Close()

	l := NewLibre(LibreOptions{BaseURL: srv.URL + "/", APIKey: "secret"})
	out, err := l.Translate(context.Background(), "Hello", "", "id")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != "Halo" {
		t.Errorf("Translate() = %q, want Halo", out)
	}
	if got.Q != "Hello" || got.Source != "auto" || got.Target != "id" || got.APIKey != "secret" {
		t.Errorf("request body = %+v", got)
	}
}

func TestLibreErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   apperrors.ErrorCode
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, apperrors.TranslationFailed},
		{"bad request", http.StatusBadRequest, `{"error":"bad lang"}`, apperrors.TranslationInvalidResponse},
		{"malformed json", http.StatusOK, `not json`, apperrors.TranslationInvalidResponse},
		{"missing field", http.StatusOK, `{"other":"x"}`, apperrors.TranslationInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewLibre(LibreOptions{BaseURL: srv.URL}).Translate(context.Background(), "Hello", "en", "id")
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestLibreTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewLibre(LibreOptions{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}).
		Translate(context.Background(), "Hello", "en", "id")
	if !apperrors.IsCode(err, apperrors.TranslationTimeout) {
		t.Errorf("error = %v, want TRANSLATION_TIMEOUT", err)
	}
}

func TestLibreCancelledRequestsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"translatedText":"Halo"}`))
	}))
	defer srv.Close()

	l := NewLibre(LibreOptions{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		if _, err := l.Translate(ctx, "Hello", "en", "id"); !stderrors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	}
	if st := l.Breaker().State(); st.String() != "closed" {
		t.Errorf("breaker = %v after cancelled requests, want closed", st)
	}

	out, err := l.Translate(context.Background(), "Hello", "en", "id")
	if err != nil || out != "Halo" {
		t.Errorf("Translate() = %q, %v", out, err)
	}
}

func TestLibreRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"translatedText":"Halo"}`))
	}))
	defer srv.Close()

	out, err := NewLibre(LibreOptions{BaseURL: srv.URL, Retries: 1}).Translate(context.Background(), "Hello", "en", "id")
	if err != nil || out != "Halo" {
		t.Errorf("Translate() = %q, %v", out, err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestLibreBehindCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(NewLibre(LibreOptions{BaseURL: srv.URL}), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Translate(context.Background(), "Hello", "en", "id"); got != "Hello" {
		t.Errorf("Translate() = %q, want fallback to original", got)
	}
}
