// Package controller orchestrates the classification flows: page routing,
// the one-shot backend readiness check, upload handling with the size guard,
// text-source resolution for the two analysis paths, and saving results to
// history. It owns no rendering and no transport; those live in render and
// backend.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/backend"
	"github.com/cermatapp/cermat/internal/history"
	"github.com/cermatapp/cermat/internal/models"
	"github.com/cermatapp/cermat/internal/notify"
	"github.com/cermatapp/cermat/internal/render"
	"github.com/cermatapp/cermat/internal/rules"
	"github.com/cermatapp/cermat/internal/session"
)

// Page identifies one of the application views.
type Page string

const (
	PageIndex          Page = "index"
	PageModelDetection Page = "model-detection"
	PageRuleDetection  Page = "rule-detection"
	PageHistory        Page = "history"
	PageAbout          Page = "about"
)

// DetectPage maps a URL path to a page. Unrecognized paths fall back to the
// index.
func DetectPage(path string) Page {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "model-detection"):
		return PageModelDetection
	case strings.Contains(p, "rule-detection"):
		return PageRuleDetection
	case strings.Contains(p, "history"):
		return PageHistory
	case strings.Contains(p, "about"):
		return PageAbout
	default:
		return PageIndex
	}
}

// ValidationError is an input problem caught before any network call.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

const (
	// ErrNoText means neither manual text nor a cached upload was available.
	ErrNoText = ValidationError("Please enter text or upload a document first.")
	// ErrTextTooShort mirrors the model endpoint's minimum-length rule so the
	// request is never sent.
	ErrTextTooShort = ValidationError("Text must be at least 10 characters long.")
)

// minModelTextLen is the model endpoint's minimum input length.
const minModelTextLen = 10

// ErrSuperseded marks a response that arrived after a newer request took over
// the panel. The caller must drop it without rendering.
var ErrSuperseded = errors.New("response superseded by a newer request")

// DefaultTitle is used when a saved result has no title.
const DefaultTitle = "Untitled Document"

// Config wires the controller's collaborators.
type Config struct {
	Backend        *backend.Client
	Store          *history.Store
	Rules          *rules.Engine
	Documents      *session.Cache
	Notifier       *notify.Center
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// Controller is the page controller. All state it mutates is injected; the
// only state it owns is the readiness flag and the per-panel request
// generations.
type Controller struct {
	backend   *backend.Client
	store     *history.Store
	rules     *rules.Engine
	docs      *session.Cache
	notifier  *notify.Center
	logger    *zap.Logger
	maxUpload int64

	mu      sync.Mutex
	checked bool
	ready   bool
	gens    map[string]uint64
}

// New creates a controller from its collaborators.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewCenter(logger)
	}
	docs := cfg.Documents
	if docs == nil {
		docs = session.NewCache()
	}
	return &Controller{
		backend:   cfg.Backend,
		store:     cfg.Store,
		rules:     cfg.Rules,
		docs:      docs,
		notifier:  notifier,
		logger:    logger,
		maxUpload: cfg.MaxUploadBytes,
		gens:      make(map[string]uint64),
	}
}

// CheckBackendHealth performs the single readiness probe: one GET, no retry.
// The readiness flag flips on the outcome and stays until the next check.
func (c *Controller) CheckBackendHealth(ctx context.Context) (*models.HealthStatus, error) {
	status, err := c.backend.Health(ctx)

	c.mu.Lock()
	c.checked = true
	c.ready = err == nil
	c.mu.Unlock()

	// A failed check is logged and reflected in the readiness flag only; the
	// indicator is the user-facing surface, not a notification.
	if err != nil {
		c.logger.Warn("backend health check failed", zap.Error(err))
		return nil, err
	}
	c.logger.Info("backend healthy",
		zap.String("status", status.Status),
		zap.Bool("model_loaded", status.ModelLoaded))
	return status, nil
}

// Ready reports the result of the last health check.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checked && c.ready
}

// HandleFileUpload validates the size cap, forwards the file to the
// extraction endpoint, and caches the extracted document in the session slot
// for the panel. An oversized file is rejected before any network call.
func (c *Controller) HandleFileUpload(ctx context.Context, sessionID string, panel session.Panel, filename string, size int64, r io.Reader) (*models.ExtractedDocument, error) {
	if c.maxUpload > 0 && size > c.maxUpload {
		msg := fmt.Sprintf("File exceeds the %d MB upload limit.", c.maxUpload/(1024*1024))
		c.notifier.Notify(msg, notify.SeverityError)
		return nil, ValidationError(msg)
	}

	doc, err := c.backend.UploadDocument(ctx, filename, r)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			c.notifier.Notify(apiErr.Message, notify.SeverityError)
		} else {
			c.notifier.Notify(render.NetworkErrorMessage, notify.SeverityError)
		}
		return nil, err
	}

	c.docs.Set(sessionID, panel, &session.Document{
		Filename: doc.Filename,
		Text:     doc.ExtractedText,
		Title:    doc.Title,
		Abstract: doc.Abstract,
		Keywords: doc.Keywords,
		Authors:  doc.Authors,
		Year:     doc.Year,
	})
	c.notifier.Notify(fmt.Sprintf("Extracted %d characters from %s.", doc.CharCount, doc.Filename), notify.SeveritySuccess)
	return doc, nil
}

// resolveText picks the analysis input: manually entered text wins if
// non-empty after trimming, then the cached uploaded-document text.
func (c *Controller) resolveText(sessionID string, panel session.Panel, manual string) (string, error) {
	if text := strings.TrimSpace(manual); text != "" {
		return text, nil
	}
	if doc, ok := c.docs.Get(sessionID, panel); ok && strings.TrimSpace(doc.Text) != "" {
		return doc.Text, nil
	}
	return "", ErrNoText
}

// begin registers a new request for the panel and returns its generation.
func (c *Controller) begin(sessionID string, panel session.Panel) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := sessionID + "/" + string(panel)
	c.gens[k]++
	return c.gens[k]
}

// isCurrent reports whether gen is still the newest request for the panel.
func (c *Controller) isCurrent(sessionID string, panel session.Panel, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[sessionID+"/"+string(panel)] == gen
}

// ModelOutcome is the settled state of a model analysis: either a rendered
// view or a failure panel, never both.
type ModelOutcome struct {
	View    *render.ModelResultView
	Failure *render.FailurePanel
	Raw     *models.ModelAnalysis
}

// AnalyzeWithModel resolves the text source, submits it to the model
// endpoint, and renders the outcome. Validation problems return an error
// before any request is sent; a response that lost the panel to a newer
// request returns ErrSuperseded.
func (c *Controller) AnalyzeWithModel(ctx context.Context, sessionID, manualText string) (*ModelOutcome, error) {
	text, err := c.resolveText(sessionID, session.PanelModel, manualText)
	if err != nil {
		c.notifier.Notify(string(ErrNoText), notify.SeverityWarning)
		return nil, err
	}
	if len(text) < minModelTextLen {
		c.notifier.Notify(string(ErrTextTooShort), notify.SeverityWarning)
		return nil, ErrTextTooShort
	}

	gen := c.begin(sessionID, session.PanelModel)
	c.notifier.SetLoading("model-results", "Analyzing...")

	resp, err := c.backend.AnalyzeModel(ctx, text)

	if !c.isCurrent(sessionID, session.PanelModel, gen) {
		// A newer request owns the panel now, including its loading state.
		return nil, ErrSuperseded
	}
	c.notifier.ClearLoading("model-results")

	if err != nil {
		return &ModelOutcome{Failure: c.failurePanel(err)}, nil
	}
	if !resp.Success {
		return &ModelOutcome{Failure: render.BuildFailurePanel(resp.Error), Raw: resp}, nil
	}
	return &ModelOutcome{View: render.BuildModelView(resp), Raw: resp}, nil
}

// RuleOutcome is the settled state of a rule analysis.
type RuleOutcome struct {
	View    *render.RuleResultView
	Failure *render.FailurePanel
	Raw     *models.RuleAnalysis
}

// AnalyzeWithRules resolves the text source and submits it to the rule
// endpoint. Same flow and failure taxonomy as the model path.
func (c *Controller) AnalyzeWithRules(ctx context.Context, sessionID, manualText string) (*RuleOutcome, error) {
	text, err := c.resolveText(sessionID, session.PanelRule, manualText)
	if err != nil {
		c.notifier.Notify(string(ErrNoText), notify.SeverityWarning)
		return nil, err
	}

	gen := c.begin(sessionID, session.PanelRule)
	c.notifier.SetLoading("rule-results", "Matching rules...")

	resp, err := c.backend.AnalyzeRule(ctx, text)

	if !c.isCurrent(sessionID, session.PanelRule, gen) {
		return nil, ErrSuperseded
	}
	c.notifier.ClearLoading("rule-results")

	if err != nil {
		return &RuleOutcome{Failure: c.failurePanel(err)}, nil
	}
	if !resp.Success {
		return &RuleOutcome{Failure: render.BuildFailurePanel(resp.Error), Raw: resp}, nil
	}
	return &RuleOutcome{View: render.BuildRuleView(resp.MatchedSDGs, resp.TotalMatches), Raw: resp}, nil
}

// failurePanel maps the error taxonomy to its panel: a logical failure shows
// the backend's reason, everything else the network-error state.
func (c *Controller) failurePanel(err error) *render.FailurePanel {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return render.BuildFailurePanel(apiErr.Message)
	}
	c.logger.Warn("analysis request failed", zap.Error(err))
	return render.BuildNetworkErrorPanel()
}

// MatchLocally runs the built-in rule table against text without touching
// the backend. Only the top-ranked goals are returned; the total counts
// every match, capped or not.
func (c *Controller) MatchLocally(text string) ([]models.RuleMatch, int) {
	matches := c.rules.Match(text)
	total := rules.TotalMatches(matches)
	return rules.Top(matches), total
}

// SaveResult appends a record to history, defaulting the title when empty.
func (c *Controller) SaveResult(ctx context.Context, rec *models.ClassificationRecord) error {
	if strings.TrimSpace(rec.Title) == "" {
		rec.Title = DefaultTitle
	}
	if err := c.store.Append(ctx, rec); err != nil {
		c.notifier.Notify("Failed to save to history.", notify.SeverityError)
		return err
	}
	c.notifier.Notify("Result saved to history.", notify.SeveritySuccess)
	return nil
}

// ClearResults empties the panel: the cached document is dropped, any
// in-flight response is invalidated, and the loading state is cleared.
func (c *Controller) ClearResults(sessionID string, panel session.Panel) {
	c.docs.Clear(sessionID, panel)
	c.begin(sessionID, panel)
	switch panel {
	case session.PanelModel:
		c.notifier.ClearLoading("model-results")
	case session.PanelRule:
		c.notifier.ClearLoading("rule-results")
	}
}
