package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, zap.NewNop()), srv
}

func TestAnalyzeModel(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyze/model" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"text":"renewable energy"`) {
			t.Errorf("body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "predictions": [{"sdg": "SDG 7: Affordable and Clean Energy", "confidence": 92.5, "source": "ml_model"}], "model_name": "sdg-pipeline"}`))
	})

	out, err := client.AnalyzeModel(context.Background(), "renewable energy")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Success {
		t.Error("success should be true")
	}
	if len(out.Predictions) != 1 || out.Predictions[0].Confidence != 92.5 {
		t.Errorf("predictions: %+v", out.Predictions)
	}
}

func TestAnalyzeModel_logicalFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "Teks terlalu pendek (min 10 karakter)"}`))
	})

	_, err := client.AnalyzeModel(context.Background(), "short")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "Teks terlalu pendek (min 10 karakter)" {
		t.Errorf("message: %q", apiErr.Message)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status: %d", apiErr.StatusCode)
	}
}

func TestAnalyzeModel_malformedBodyIsTransportError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway timeout</html>"))
	})

	_, err := client.AnalyzeModel(context.Background(), "some text here")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("malformed body should not be an APIError: %v", err)
	}
}

func TestAnalyzeModel_connectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, time.Second, zap.NewNop())
	_, err := client.AnalyzeModel(context.Background(), "some text here")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("connection failure should not be an APIError: %v", err)
	}
}

func TestAnalyzeRule(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyze/rule" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "total_matches": 3, "matched_sdgs": [{"sdg": "SDG 6: Clean Water and Sanitation", "match_count": 3, "confidence": 45, "matched_rules": ["water", "sanitation", "clean water"]}]}`))
	})

	out, err := client.AnalyzeRule(context.Background(), "clean water and sanitation for all")
	if err != nil {
		t.Fatal(err)
	}
	if out.TotalMatches != 3 {
		t.Errorf("total_matches: %d", out.TotalMatches)
	}
	if len(out.MatchedSDGs) != 1 || out.MatchedSDGs[0].MatchCount != 3 {
		t.Errorf("matched_sdgs: %+v", out.MatchedSDGs)
	}
}

func TestUploadDocument(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/document" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "paper.txt" {
			t.Errorf("filename: %s", hdr.Filename)
		}
		content, _ := io.ReadAll(f)
		if string(content) != "document body" {
			t.Errorf("content: %s", content)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "filename": "paper.txt", "file_type": "TEXT", "char_count": 13, "extracted_text": "document body", "has_structure": false}`))
	})

	out, err := client.UploadDocument(context.Background(), "paper.txt", strings.NewReader("document body"))
	if err != nil {
		t.Fatal(err)
	}
	if out.ExtractedText != "document body" || out.FileType != "TEXT" {
		t.Errorf("unexpected payload: %+v", out)
	}
}

func TestUploadDocument_unsupportedType(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "Unsupported file type"}`))
	})

	_, err := client.UploadDocument(context.Background(), "img.png", strings.NewReader("x"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "Unsupported file type" {
		t.Errorf("message: %q", apiErr.Message)
	}
}

func TestHealth(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/system/health" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "healthy", "model_loaded": true, "api_version": "1.0.0"}`))
	})

	out, err := client.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "healthy" || !out.ModelLoaded {
		t.Errorf("health: %+v", out)
	}
}

func TestInfo(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/system/info" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model_loaded": true, "sdg_labels": {"SDG 1": "No Poverty"}, "features": {"rule_based_detection": true}}`))
	})

	out, err := client.Info(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.SDGLabels["SDG 1"] != "No Poverty" {
		t.Errorf("sdg_labels: %v", out.SDGLabels)
	}
	if !out.Features["rule_based_detection"] {
		t.Errorf("features: %v", out.Features)
	}
}
