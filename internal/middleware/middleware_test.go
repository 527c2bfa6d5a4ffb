package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLoggerCapturesStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	line := buf.String()
	if !strings.Contains(line, "status=418") {
		t.Errorf("log line missing status: %s", line)
	}
	if !strings.Contains(line, "bytes=15") {
		t.Errorf("log line missing byte count: %s", line)
	}
	if !strings.Contains(line, "path=/teapot") {
		t.Errorf("log line missing path: %s", line)
	}
}

func TestLoggerDefaultsTo200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // implicit 200
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "status=200") {
		t.Errorf("log line = %s, want implicit 200 recorded", buf.String())
	}
}

func TestMetricsLabelsByRoutePattern(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Metrics)
	router.Get("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	counter := requestsTotal.WithLabelValues("/widgets/{id}", http.MethodGet, "204")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/widgets/1", "/widgets/2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("pattern series grew by %v, want 2 (both IDs share one series)", got)
	}
}
