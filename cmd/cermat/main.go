// Package main is the Cermat CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/backend"
	"github.com/cermatapp/cermat/internal/config"
	"github.com/cermatapp/cermat/internal/controller"
	"github.com/cermatapp/cermat/internal/history"
	"github.com/cermatapp/cermat/internal/models"
	"github.com/cermatapp/cermat/internal/notify"
	"github.com/cermatapp/cermat/internal/render"
	"github.com/cermatapp/cermat/internal/rules"
	"github.com/cermatapp/cermat/internal/server"
	"github.com/cermatapp/cermat/internal/session"
	"github.com/cermatapp/cermat/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/cermat/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "cermat server" from the project dir uses the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "analyze":
		runAnalyze()
	case "upload":
		runUpload()
	case "history":
		runHistory()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("cermat version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: cermat <command> [flags]

Commands:
  server    Start the HTTP API server
  analyze   Classify text against the SDGs (model, rule, or local method)
  upload    Send a document to the extraction endpoint
  history   List, remove, or export saved classifications
  status    Show backend health and system info
  version   Print version
  help      Show this help
`)
}

// components holds everything a subcommand may need, wired once.
type components struct {
	Config *config.Config
	Logger *zap.Logger
	Client *backend.Client
	Store  *history.Store
	Engine *rules.Engine
	Ctrl   *controller.Controller
	Hub    *notify.Hub
}

func (c *components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	_ = c.Logger.Sync()
}

// initializeComponents wires the shared components. withHub additionally
// creates the websocket event hub and attaches it to the notification center
// so UI state changes reach connected clients; one-shot CLI commands skip it.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withHub bool) (*components, error) {
	storage, err := history.NewSQLiteStorage(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open history storage: %w", err)
	}
	index, err := history.NewIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("open history index: %w", err)
	}
	store, err := history.NewStore(storage, index, logger)
	if err != nil {
		_ = storage.Close()
		_ = index.Close()
		return nil, err
	}

	table := rules.Default()
	if cfg.Storage.RulesPath != "" {
		if loaded, loadErr := rules.LoadFile(cfg.Storage.RulesPath); loadErr == nil {
			table = loaded
		} else {
			logger.Warn("rule file load failed, using built-in table",
				zap.String("path", cfg.Storage.RulesPath), zap.Error(loadErr))
		}
	}
	engine := rules.NewEngine(table, cfg.Storage.RulesPath, rules.WithLogger(logger))

	client := backend.NewClient(cfg.Backend.URL,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second, logger)

	var hub *notify.Hub
	centerOpts := []notify.Option{}
	if withHub {
		hub = notify.NewHub(logger, nil)
		centerOpts = append(centerOpts, notify.WithBroadcaster(hub))
	}

	ctrl := controller.New(controller.Config{
		Backend:        client,
		Store:          store,
		Rules:          engine,
		Documents:      session.NewCache(),
		Notifier:       notify.NewCenter(logger, centerOpts...),
		Logger:         logger,
		MaxUploadBytes: cfg.Upload.MaxSizeBytes(),
	})

	return &components{
		Config: cfg,
		Logger: logger,
		Client: client,
		Store:  store,
		Engine: engine,
		Ctrl:   ctrl,
		Hub:    hub,
	}, nil
}

func mustInit(configPath string, debugFlag bool, withHub bool) *components {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	comps, err := initializeComponents(cfg, logger, withHub)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return comps
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	comps := mustInit(*configPath, *debug, true)
	defer comps.Close()
	logger := comps.Logger

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := comps.Engine.Watch(watchCtx); err != nil {
		logger.Warn("rule file watch disabled", zap.Error(err))
	}

	srv := server.NewServer(comps.Ctrl, comps.Store, comps.Engine, comps.Client, comps.Hub, comps.Config, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	method := fs.String("method", "model", "analysis method: model, rule, or local")
	title := fs.String("title", "", "title to use when saving")
	save := fs.Bool("save", false, "save the result to history")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, "Usage: cermat analyze [flags] <text>")
		os.Exit(1)
	}

	comps := mustInit(*configPath, false, false)
	defer comps.Close()
	ctx := context.Background()
	sessionID := session.NewID()

	var rec *models.ClassificationRecord
	switch *method {
	case "model":
		out, err := comps.Ctrl.AnalyzeWithModel(ctx, sessionID, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
			os.Exit(1)
		}
		if out.Failure != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %s\n", out.Failure.Message)
			os.Exit(1)
		}
		printJSONOrRows(*outputFormat, out.View, func() {
			for _, row := range out.View.Rows {
				fmt.Printf("%-50s %6.1f%%  (%s)\n", row.SDG, row.Confidence, row.Band)
			}
		})
		rec = &models.ClassificationRecord{Type: models.RecordModel, Title: *title, Predictions: out.Raw.Predictions}
	case "rule":
		out, err := comps.Ctrl.AnalyzeWithRules(ctx, sessionID, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
			os.Exit(1)
		}
		if out.Failure != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %s\n", out.Failure.Message)
			os.Exit(1)
		}
		printJSONOrRows(*outputFormat, out.View, func() {
			printRuleRows(out.View.Rows, out.View.TotalMatches)
		})
		rec = &models.ClassificationRecord{Type: models.RecordRule, Title: *title, Matches: out.Raw.MatchedSDGs}
	case "local":
		matches, total := comps.Ctrl.MatchLocally(text)
		view := struct {
			MatchedSDGs  []models.RuleMatch `json:"matched_sdgs"`
			TotalMatches int                `json:"total_matches"`
		}{matches, total}
		printJSONOrRows(*outputFormat, view, func() {
			for _, m := range matches {
				fmt.Printf("%-50s %3d matches %6.1f%%  [%s]\n",
					m.SDG, m.MatchCount, m.Confidence, strings.Join(m.MatchedRules, ", "))
			}
			fmt.Printf("Total matches: %d\n", total)
		})
		rec = &models.ClassificationRecord{Type: models.RecordRule, Title: *title, Matches: matches}
	default:
		fmt.Fprintf(os.Stderr, "Unknown method %q; use model, rule, or local\n", *method)
		os.Exit(1)
	}

	if *save && rec != nil && (len(rec.Predictions) > 0 || len(rec.Matches) > 0) {
		if err := comps.Ctrl.SaveResult(ctx, rec); err != nil {
			fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved to history as record %d\n", rec.ID)
	}
}

func printRuleRows(rows []render.RuleRow, total int) {
	for _, row := range rows {
		fmt.Printf("%-50s %3d matches %6.1f%%  [%s]\n",
			row.SDG, row.MatchCount, row.Confidence, strings.Join(row.MatchedRules, ", "))
	}
	fmt.Printf("Total matches: %d\n", total)
}

func printJSONOrRows(format string, v interface{}, text func()) {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	text()
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	panel := fs.String("panel", "model", "panel slot to cache into: model or rule")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cermat upload [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	comps := mustInit(*configPath, false, false)
	defer comps.Close()

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat file: %v\n", err)
		os.Exit(1)
	}

	slot := session.PanelModel
	if *panel == string(session.PanelRule) {
		slot = session.PanelRule
	}
	doc, err := comps.Ctrl.HandleFileUpload(context.Background(), session.NewID(), slot,
		filepath.Base(path), info.Size(), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Extracted %d characters from %s\n", doc.CharCount, doc.Filename)
	if doc.Title != "" {
		fmt.Printf("Title:    %s\n", doc.Title)
	}
	if doc.Abstract != "" {
		fmt.Printf("Abstract: %s\n", utils.Preview(doc.Abstract))
	}
}

func runHistory() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: cermat history <list|remove|export> [flags]")
		os.Exit(1)
	}
	action := os.Args[2]
	switch action {
	case "list":
		runHistoryList()
	case "remove":
		runHistoryRemove()
	case "export":
		runHistoryExport()
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		os.Exit(1)
	}
}

func historyFlags(fs *flag.FlagSet) (configPath *string, filterFn func() models.HistoryFilter) {
	configPath = fs.String("config", defaultConfigPath, "config file path")
	search := fs.String("search", "", "search title/abstract/keywords")
	recType := fs.String("type", "", "filter by type: model or rule")
	sdg := fs.Int("sdg", 0, "filter by SDG number (1-17)")
	date := fs.String("date", "", "filter by local date (YYYY-MM-DD)")
	filterFn = func() models.HistoryFilter {
		return models.HistoryFilter{
			Search: *search,
			Type:   models.RecordType(*recType),
			SDG:    *sdg,
			Date:   *date,
		}
	}
	return configPath, filterFn
}

func runHistoryList() {
	fs := flag.NewFlagSet("history list", flag.ExitOnError)
	configPath, filterFn := historyFlags(fs)
	limit := fs.Int("limit", 0, "maximum rows (0 = config display limit)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[3:])

	comps := mustInit(*configPath, false, false)
	defer comps.Close()
	ctx := context.Background()

	n := *limit
	if n == 0 {
		n = comps.Config.History.DisplayLimit
	}
	recs, err := comps.Store.List(ctx, filterFn(), n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	stats, err := comps.Store.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		printJSONOrRows("json", map[string]interface{}{"records": recs, "stats": stats}, nil)
		return
	}
	for _, rec := range recs {
		top := ""
		switch {
		case len(rec.Predictions) > 0:
			top = rec.Predictions[0].SDG
		case len(rec.Matches) > 0:
			top = rec.Matches[0].SDG
		}
		fmt.Printf("%d  %-5s  %-40s  %s  %s\n",
			rec.ID, rec.Type, utils.Truncate(rec.Title, 40), top,
			rec.Timestamp.Format("2006-01-02 15:04"))
	}
	fmt.Printf("Total: %d (%d model, %d rule)\n", stats.Total, stats.Model, stats.Rule)
}

func runHistoryRemove() {
	fs := flag.NewFlagSet("history remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[3:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cermat history remove [flags] <id>...")
		os.Exit(1)
	}
	var ids []int64
	for _, arg := range fs.Args() {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid id %q\n", arg)
			os.Exit(1)
		}
		ids = append(ids, id)
	}

	comps := mustInit(*configPath, false, false)
	defer comps.Close()

	if err := comps.Store.RemoveMany(context.Background(), ids); err != nil {
		fmt.Fprintf(os.Stderr, "Remove failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d record(s)\n", len(ids))
}

func runHistoryExport() {
	fs := flag.NewFlagSet("history export", flag.ExitOnError)
	configPath, filterFn := historyFlags(fs)
	format := fs.String("format", "json", "export format: json or xlsx")
	out := fs.String("out", "", "output path (default: generated filename in the current directory)")
	_ = fs.Parse(os.Args[3:])

	comps := mustInit(*configPath, false, false)
	defer comps.Close()

	recs, err := comps.Store.List(context.Background(), filterFn(), 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}

	path := *out
	if path == "" {
		path = history.ExportFilename("history", *format, time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	switch *format {
	case "json":
		err = history.WriteJSON(f, recs)
	case "xlsx":
		err = history.WriteXLSX(f, recs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown format %q; use json or xlsx\n", *format)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d record(s) to %s\n", len(recs), path)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	comps := mustInit(*configPath, false, false)
	defer comps.Close()
	ctx := context.Background()

	health, err := comps.Client.Health(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backend unreachable: %v\n", err)
		os.Exit(1)
	}
	info, infoErr := comps.Client.Info(ctx)

	if *outputFormat == "json" {
		printJSONOrRows("json", map[string]interface{}{"health": health, "info": info}, nil)
		return
	}
	fmt.Printf("Backend:       %s\n", comps.Client.BaseURL())
	fmt.Printf("Status:        %s\n", health.Status)
	fmt.Printf("Model loaded:  %v\n", health.ModelLoaded)
	if health.Model != "" {
		fmt.Printf("Model:         %s\n", health.Model)
	}
	if infoErr == nil && info != nil {
		if len(info.SupportedFormats) > 0 {
			fmt.Printf("Formats:       %s\n", strings.Join(info.SupportedFormats, ", "))
		}
		if info.MaxUploadSizeMB > 0 {
			fmt.Printf("Upload limit:  %.0f MB\n", info.MaxUploadSizeMB)
		}
	}
}
