// Package data_test provides tests for the result-file store.
package data_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"go.uber.org/zap"
)

func TestStoreSaveListRead(t *testing.T) {
	logger := zap.NewNop()
	tempDir := t.TempDir()

	store, err := data.NewStore(logger, tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	raw := mustJSON(t, buildResult(3))
	if err := store.Save("b.json", raw); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := store.Save("a_consolidated_json.json", raw); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	files, err := store.List()
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(files) != 2 || files[0].Name != "a_consolidated_json.json" || files[1].Name != "b.json" {
		t.Fatalf("Unexpected listing: %+v", files)
	}

	store.ClearCache()
	got, err := store.Read("b.json")
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(got) != string(raw) {
		t.Error("Read returned different bytes")
	}
	if !store.Exists("b.json") || store.Exists("missing.json") {
		t.Error("Exists returned wrong result")
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for _, name := range []string{"../etc/passwd", "a/b.json", "", ".."} {
		if _, err := store.Read(name); !errors.Is(err, data.ErrInvalidName) {
			t.Errorf("Expected ErrInvalidName for %q, got %v", name, err)
		}
	}
	if _, err := store.Read("missing.json"); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFetcherSuccessAndFailure(t *testing.T) {
	raw := mustJSON(t, buildResult(2))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(raw)
	}))
	defer srv.Close()

	fetcher := data.NewFetcher(zap.NewNop(), time.Second)

	got, err := fetcher.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != string(raw) {
		t.Error("Fetched body mismatch")
	}

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/missing")
	var fe *data.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 FetchError, got %v", err)
	}
	if !errors.Is(err, data.ErrFetch) {
		t.Error("FetchError should match ErrFetch")
	}
}

func TestQualityValidator(t *testing.T) {
	doc := buildResult(10)
	doc["date_list"].([]string)[4] = "not a date"
	closed := doc["close_position"].([][]map[string]interface{})
	closed[2] = []map[string]interface{}{{"symbol": "SOL", "buy_index": 5}}

	ts, err := data.Parse(mustJSON(t, doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ts.PnL[1] = math.NaN()

	report := data.NewQualityValidator(zap.NewNop()).Validate(ts, "fixture")
	if report.TotalSteps != 10 {
		t.Errorf("Expected 10 steps, got %d", report.TotalSteps)
	}
	if report.NonFiniteCount != 1 {
		t.Errorf("Expected 1 non-finite issue, got %d", report.NonFiniteCount)
	}
	if report.DateIssueCount != 1 {
		t.Errorf("Expected 1 date issue, got %d", report.DateIssueCount)
	}
	if report.DanglingRefCount != 1 {
		t.Errorf("Expected 1 dangling reference, got %d", report.DanglingRefCount)
	}
	if report.QualityScore >= 100 {
		t.Errorf("Expected penalized score, got %d", report.QualityScore)
	}
}

func TestQualityValidatorCleanSeries(t *testing.T) {
	ts, err := data.Parse(mustJSON(t, buildResult(20)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	report := data.NewQualityValidator(zap.NewNop()).Validate(ts, "clean")
	if len(report.Issues) != 0 || report.QualityScore != 100 || !report.IsUsable {
		t.Errorf("Expected clean report, got %+v", report)
	}
}

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/results/alpha_consolidated_json.json", "alpha_consolidated_json.json"},
		{"https://example.com/", "default.json"},
		{"https://example.com", "default.json"},
		{"://bad", "default.json"},
	}
	for _, tt := range tests {
		if got := data.NameFromURL(tt.url); got != tt.want {
			t.Errorf("NameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
