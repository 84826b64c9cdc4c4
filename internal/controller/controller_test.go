package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/backend"
	"github.com/cermatapp/cermat/internal/history"
	"github.com/cermatapp/cermat/internal/models"
	"github.com/cermatapp/cermat/internal/notify"
	"github.com/cermatapp/cermat/internal/render"
	"github.com/cermatapp/cermat/internal/rules"
	"github.com/cermatapp/cermat/internal/session"
)

func TestDetectPage(t *testing.T) {
	tests := []struct {
		path string
		want Page
	}{
		{"/model-detection", PageModelDetection},
		{"/pages/Model-Detection.html", PageModelDetection},
		{"/rule-detection", PageRuleDetection},
		{"/history", PageHistory},
		{"/about", PageAbout},
		{"/", PageIndex},
		{"/something-else", PageIndex},
		{"", PageIndex},
	}
	for _, tt := range tests {
		if got := DetectPage(tt.path); got != tt.want {
			t.Errorf("DetectPage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func newTestStore(t *testing.T) *history.Store {
	t.Helper()
	storage, err := history.NewSQLiteStorage(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	index, err := history.NewIndex("")
	if err != nil {
		t.Fatal(err)
	}
	store, err := history.NewStore(storage, index, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestController(t *testing.T, backendURL string) *Controller {
	t.Helper()
	return New(Config{
		Backend:        backend.NewClient(backendURL, 5*time.Second, zap.NewNop()),
		Store:          newTestStore(t),
		Rules:          rules.NewEngine(rules.Default(), ""),
		Documents:      session.NewCache(),
		Notifier:       notify.NewCenter(zap.NewNop()),
		Logger:         zap.NewNop(),
		MaxUploadBytes: 16 * 1024 * 1024,
	})
}

func TestCheckBackendHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/system/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.HealthStatus{Status: "healthy", ModelLoaded: true})
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)
	if c.Ready() {
		t.Error("ready before any check")
	}
	status, err := c.CheckBackendHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != "healthy" || !c.Ready() {
		t.Errorf("status %+v, ready %v", status, c.Ready())
	}
}

func TestCheckBackendHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	center := notify.NewCenter(zap.NewNop())
	c := New(Config{
		Backend:  backend.NewClient(srv.URL, 5*time.Second, zap.NewNop()),
		Store:    newTestStore(t),
		Rules:    rules.NewEngine(rules.Default(), ""),
		Notifier: center,
		Logger:   zap.NewNop(),
	})
	if _, err := c.CheckBackendHealth(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if c.Ready() {
		t.Error("ready after a failed check")
	}
	// The readiness flag is the only user-facing surface for a failed check.
	if n := center.Current(); n != nil {
		t.Errorf("failed health check surfaced a notification: %+v", n)
	}
}

func TestHandleFileUpload_SizeGuardSkipsNetwork(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)
	_, err := c.HandleFileUpload(context.Background(), "s1", session.PanelModel,
		"big.pdf", 16*1024*1024+1, strings.NewReader("x"))

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("oversized upload reached the network %d times", n)
	}
}

func TestHandleFileUpload_CachesExtractedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ExtractedDocument{
			Success:       true,
			Filename:      "paper.pdf",
			CharCount:     24,
			ExtractedText: "clean water and sanitation",
			Title:         "Water Paper",
		})
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)
	doc, err := c.HandleFileUpload(context.Background(), "s1", session.PanelRule,
		"paper.pdf", 1024, strings.NewReader("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Water Paper" {
		t.Errorf("doc: %+v", doc)
	}
	cached, ok := c.docs.Get("s1", session.PanelRule)
	if !ok || cached.Text != "clean water and sanitation" || cached.Title != "Water Paper" {
		t.Errorf("cached: %+v ok=%v", cached, ok)
	}
}

func TestAnalyzeWithModel_TextSourcePrecedence(t *testing.T) {
	var lastText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		lastText = req.Text
		json.NewEncoder(w).Encode(models.ModelAnalysis{
			Success:     true,
			Predictions: []models.PredictionResult{{SDG: "SDG 6: Clean Water and Sanitation", Confidence: 90}},
		})
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)
	c.docs.Set("s1", session.PanelModel, &session.Document{Text: "cached document text here"})

	// Manual text wins over the cached upload.
	out, err := c.AnalyzeWithModel(context.Background(), "s1", "  manually typed text  ")
	if err != nil {
		t.Fatal(err)
	}
	if out.View == nil || lastText != "manually typed text" {
		t.Errorf("sent %q", lastText)
	}

	// Blank manual text falls back to the cached upload.
	if _, err := c.AnalyzeWithModel(context.Background(), "s1", "   "); err != nil {
		t.Fatal(err)
	}
	if lastText != "cached document text here" {
		t.Errorf("fallback sent %q", lastText)
	}
}

func TestAnalyzeWithModel_NoInputSendsNothing(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)
	_, err := c.AnalyzeWithModel(context.Background(), "s1", "   ")
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("want ErrNoText, got %v", err)
	}

	// Under the model minimum length: still no request.
	_, err = c.AnalyzeWithModel(context.Background(), "s1", "short")
	if !errors.Is(err, ErrTextTooShort) {
		t.Fatalf("want ErrTextTooShort, got %v", err)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("validation failures reached the network %d times", n)
	}
}

func TestAnalyzeWithModel_FailureTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Teks terlalu pendek"})
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)
	out, err := c.AnalyzeWithModel(context.Background(), "s1", "a perfectly long enough input")
	if err != nil {
		t.Fatal(err)
	}
	if out.Failure == nil || out.Failure.Kind != render.FailureKindLogical || out.Failure.Message != "Teks terlalu pendek" {
		t.Errorf("logical failure: %+v", out.Failure)
	}

	// Transport failure renders the distinct network-error state.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()
	c2 := newTestController(t, dead.URL)
	out, err = c2.AnalyzeWithModel(context.Background(), "s1", "a perfectly long enough input")
	if err != nil {
		t.Fatal(err)
	}
	if out.Failure == nil || out.Failure.Kind != render.FailureKindNetwork {
		t.Errorf("network failure: %+v", out.Failure)
	}
}

func TestAnalyzeWithRules_LogicalFailureFlag(t *testing.T) {
	// A 2xx body with success:false is still a logical failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.RuleAnalysis{Success: false, Error: "no rules loaded"})
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)
	out, err := c.AnalyzeWithRules(context.Background(), "s1", "clean water and sanitation for all")
	if err != nil {
		t.Fatal(err)
	}
	if out.Failure == nil || out.Failure.Message != "no rules loaded" {
		t.Errorf("outcome: %+v", out)
	}
}

func TestAnalyzeWithRules_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{})
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(arrived)
			<-release // hold the first request until the second has finished
		}
		json.NewEncoder(w).Encode(models.RuleAnalysis{
			Success:      true,
			TotalMatches: 3,
			MatchedSDGs: []models.RuleMatch{
				{SDG: "SDG 6: Clean Water and Sanitation", MatchCount: 3, Confidence: 45},
			},
		})
	}))
	defer srv.Close()

	c := newTestController(t, srv.URL)

	type result struct {
		out *RuleOutcome
		err error
	}
	first := make(chan result, 1)
	go func() {
		out, err := c.AnalyzeWithRules(context.Background(), "s1", "clean water and sanitation")
		first <- result{out, err}
	}()

	<-arrived
	out, err := c.AnalyzeWithRules(context.Background(), "s1", "clean water everywhere")
	if err != nil {
		t.Fatal(err)
	}
	if out.View == nil || out.View.TotalMatches != 3 {
		t.Errorf("second request: %+v", out)
	}

	close(release)
	res := <-first
	if !errors.Is(res.err, ErrSuperseded) {
		t.Errorf("first request should be discarded, got out=%+v err=%v", res.out, res.err)
	}
}

func TestMatchLocally(t *testing.T) {
	c := newTestController(t, "http://unused.invalid")
	matches, total := c.MatchLocally("clean water and sanitation for all")
	if len(matches) == 0 || total != 3 {
		t.Fatalf("matches=%+v total=%d", matches, total)
	}
	if matches[0].SDG != "SDG 6: Clean Water and Sanitation" || matches[0].MatchCount != 3 {
		t.Errorf("top match: %+v", matches[0])
	}
}

func TestMatchLocally_ReturnsTopFive(t *testing.T) {
	c := newTestController(t, "http://unused.invalid")
	matches, total := c.MatchLocally("poverty hunger health education gender water energy")
	if len(matches) != rules.MaxResults {
		t.Fatalf("returned %d goals, want %d", len(matches), rules.MaxResults)
	}
	// Goals past the cutoff still count toward the total.
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
}

func TestSaveResult_DefaultsTitle(t *testing.T) {
	c := newTestController(t, "http://unused.invalid")
	rec := &models.ClassificationRecord{
		Type:    models.RecordRule,
		Matches: []models.RuleMatch{{SDG: "SDG 6: Clean Water and Sanitation", MatchCount: 3, Confidence: 45}},
	}
	if err := c.SaveResult(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if rec.Title != DefaultTitle {
		t.Errorf("title: %q", rec.Title)
	}
	got, err := c.store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != DefaultTitle {
		t.Errorf("stored title: %q", got.Title)
	}
}

func TestClearResults(t *testing.T) {
	c := newTestController(t, "http://unused.invalid")
	c.docs.Set("s1", session.PanelModel, &session.Document{Text: "old text"})

	c.ClearResults("s1", session.PanelModel)
	if _, ok := c.docs.Get("s1", session.PanelModel); ok {
		t.Error("cached document survived clear")
	}
}
