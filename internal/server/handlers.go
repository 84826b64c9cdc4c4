package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/backend"
	"github.com/cermatapp/cermat/internal/controller"
	"github.com/cermatapp/cermat/internal/history"
	"github.com/cermatapp/cermat/internal/models"
	"github.com/cermatapp/cermat/internal/render"
	"github.com/cermatapp/cermat/internal/session"
)

// sessionID reads the caller's session from the X-Session-ID header, minting
// a fresh one for callers that don't carry it.
func sessionID(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	return session.NewID()
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnalyzeModel(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.ctrl.AnalyzeWithModel(r.Context(), sessionID(r), req.Text)
	if err != nil {
		s.respondAnalyzeError(w, err)
		return
	}
	s.respondAnalyzeOutcome(w, out.View, out.Failure)
}

func (s *Server) handleAnalyzeRule(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.ctrl.AnalyzeWithRules(r.Context(), sessionID(r), req.Text)
	if err != nil {
		s.respondAnalyzeError(w, err)
		return
	}
	s.respondAnalyzeOutcome(w, out.View, out.Failure)
}

// respondAnalyzeError maps pre-network errors: validation problems are the
// caller's fault, a superseded response is a conflict.
func (s *Server) respondAnalyzeError(w http.ResponseWriter, err error) {
	var verr controller.ValidationError
	if errors.As(err, &verr) {
		s.respondError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if errors.Is(err, controller.ErrSuperseded) {
		s.respondError(w, http.StatusConflict, "request superseded by a newer one")
		return
	}
	s.logger.Error("analysis failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

// respondAnalyzeOutcome renders a settled analysis: a logical failure keeps
// the backend's reason, a transport failure gets its own status.
func (s *Server) respondAnalyzeOutcome(w http.ResponseWriter, view interface{}, failure *render.FailurePanel) {
	if failure != nil {
		switch failure.Kind {
		case render.FailureKindNetwork:
			s.respondError(w, http.StatusBadGateway, failure.Message)
		default:
			s.respondError(w, http.StatusUnprocessableEntity, failure.Message)
		}
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleLocalMatch(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	matches, total := s.ctrl.MatchLocally(req.Text)
	s.respondJSON(w, http.StatusOK, models.RuleAnalysis{
		Success:      true,
		TotalMatches: total,
		MatchedSDGs:  matches,
		ModelUsed:    "local_rules",
	})
}

func (s *Server) handleRuleTable(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"goals": s.rules.Table().Len(),
		"rules": s.rules.Table().Rules(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	panel := session.PanelModel
	if r.URL.Query().Get("panel") == string(session.PanelRule) {
		panel = session.PanelRule
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	s.logger.Debug("upload request",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.String("panel", string(panel)))

	doc, err := s.ctrl.HandleFileUpload(r.Context(), sessionID(r), panel, header.Filename, header.Size, file)
	if err != nil {
		var verr controller.ValidationError
		if errors.As(err, &verr) {
			s.respondError(w, http.StatusRequestEntityTooLarge, verr.Error())
			return
		}
		s.respondBackendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// historyFilter builds the filter from query parameters.
func historyFilter(r *http.Request) models.HistoryFilter {
	q := r.URL.Query()
	f := models.HistoryFilter{
		Search: q.Get("search"),
		Type:   models.RecordType(q.Get("type")),
		Date:   q.Get("date"),
	}
	if n, err := strconv.Atoi(q.Get("sdg")); err == nil {
		f.SDG = n
	}
	return f
}

func (s *Server) handleHistoryView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := s.config.History.DisplayLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	recs, err := s.store.List(ctx, historyFilter(r), limit)
	if err != nil {
		s.logger.Error("history list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Error("history stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, render.BuildHistoryView(recs, stats, limit))
}

func (s *Server) handleHistorySave(w http.ResponseWriter, r *http.Request) {
	var rec models.ClassificationRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.Type != models.RecordModel && rec.Type != models.RecordRule {
		s.respondError(w, http.StatusBadRequest, "type must be model or rule")
		return
	}
	if len(rec.Predictions) == 0 && len(rec.Matches) == 0 {
		s.respondError(w, http.StatusBadRequest, "record carries no results")
		return
	}
	if err := s.ctrl.SaveResult(r.Context(), &rec); err != nil {
		s.logger.Error("history save failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, &rec)
}

func (s *Server) handleHistoryRemove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	// Removal is idempotent: an absent id still answers removed.
	if err := s.store.Remove(r.Context(), id); err != nil {
		s.logger.Error("history remove failed", zap.Int64("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleHistoryRemoveMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "ids are required")
		return
	}
	if err := s.store.RemoveMany(r.Context(), req.IDs); err != nil {
		s.logger.Error("history remove many failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "removed", "count": len(req.IDs)})
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recs, err := s.store.List(ctx, historyFilter(r), 0)
	if err != nil {
		s.logger.Error("history export failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	var buf bytes.Buffer
	var contentType string
	switch format {
	case "json":
		contentType = "application/json"
		err = history.WriteJSON(&buf, recs)
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = history.WriteXLSX(&buf, recs)
	default:
		s.respondError(w, http.StatusBadRequest, "format must be json or xlsx")
		return
	}
	if err != nil {
		s.logger.Error("history export encode failed", zap.String("format", format), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := history.ExportFilename("history", format, time.Now())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleHealth reports overall health: the service itself plus the backend's
// view when reachable. The endpoint answers 200 either way; degradation is
// carried in the body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.ctrl.CheckBackendHealth(r.Context())
	if err != nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":            "degraded",
			"backend_reachable": false,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            status.Status,
		"backend_reachable": true,
		"model_loaded":      status.ModelLoaded,
		"model":             status.Model,
		"api_version":       status.APIVersion,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.backend.Info(r.Context())
	if err != nil {
		s.respondBackendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDetectPage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	s.respondJSON(w, http.StatusOK, map[string]string{
		"page": string(controller.DetectPage(path)),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondBackendError forwards a backend failure: logical failures keep their
// reason and status family, transport failures answer bad gateway.
func (s *Server) respondBackendError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		s.respondError(w, http.StatusUnprocessableEntity, apiErr.Message)
		return
	}
	s.logger.Warn("backend request failed", zap.Error(err))
	s.respondError(w, http.StatusBadGateway, "analysis service unavailable")
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
