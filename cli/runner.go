// Package cli wires the application components and runs the top-level
// commands (serve, ask, catalog).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prepwise/glance/analysis"
	"github.com/prepwise/glance/catalog"
	"github.com/prepwise/glance/config"
	"github.com/prepwise/glance/execution"
	"github.com/prepwise/glance/graph"
	"github.com/prepwise/glance/llm"
	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/planner"
	"github.com/prepwise/glance/server"
	"github.com/prepwise/glance/storage"
	"github.com/prepwise/glance/strategy"
)

// Options carries the global CLI flags.
type Options struct {
	Provider string
	Verbose  bool
}

// app holds the fully wired component graph for one process.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	store    *graph.Neo4jStore
	queries  graph.QueryService
	pipeline *execution.Pipeline
	contexts *execution.Store
	sessions storage.ConversationStorage
	worker   *catalog.Worker
	sqlite   *storage.SqliteStorage
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildApp constructs and connects every component. The Neo4j connection is
// established here; callers own shutdown via app.close.
func buildApp(ctx context.Context, opts Options) (*app, error) {
	providerName := opts.Provider
	if providerName == "" {
		providerName = os.Getenv("LLM_PROVIDER")
	}
	if providerName == "" {
		providerName = "openai"
	}

	settings, err := config.New(providerName)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts.Verbose)

	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProviderBuilder(providerType).
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		FromEnv()
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(provider)
	logger.Info("LLM provider ready", "provider", provider.Name(), "model", provider.Model())

	graphConfig := graph.DefaultConfig()
	graphConfig.URI = settings.Graph.URI
	graphConfig.Username = settings.Graph.Username
	graphConfig.Password = settings.Graph.Password
	graphConfig.Database = settings.Graph.Database

	store, err := graph.NewNeo4jStore(graphConfig)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to graph store: %w", err)
	}
	queries := graph.NewCachedQueryService(store, settings.Graph.CacheSize, settings.Graph.CacheTTL, logger)

	sqlite, err := storage.OpenSqlite(settings.Storage.SQLitePath)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}

	contexts := execution.NewStore(execution.StoreConfig{
		MaxContextAge: settings.Pipeline.MaxContextAge,
		SweepInterval: settings.Pipeline.SweepInterval,
	}, logger)

	analyzer := analysis.NewService(client, analysis.Config{
		CompletenessThreshold: settings.Analysis.CompletenessThreshold,
		ConfidenceThreshold:   settings.Analysis.ConfidenceThreshold,
		MaxFollowUpSteps:      settings.Analysis.MaxFollowUpSteps,
		MinSuccessfulResults:  settings.Analysis.MinSuccessfulResults,
	}, logger)

	pipeline := execution.NewPipeline(
		planner.New(client, logger),
		strategy.NewValidator(strategy.DefaultValidatorConfig(), logger),
		analyzer,
		queries,
		execution.NewAnswerSynthesizer(client, contexts, logger),
		contexts,
		execution.PipelineConfig{
			MaxIterations: settings.Pipeline.MaxIterations,
			StepTimeout:   settings.Pipeline.StepTimeout,
			LLMTimeout:    settings.Pipeline.LLMTimeout,
		},
		logger,
	)

	worker := catalog.NewWorker(
		catalog.NewGoogleCalendar(nil, logger),
		store,
		sqlite,
		logger,
	)

	return &app{
		settings: settings,
		logger:   logger,
		store:    store,
		queries:  queries,
		pipeline: pipeline,
		contexts: contexts,
		sessions: sqlite,
		worker:   worker,
		sqlite:   sqlite,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.sqlite.Close(); err != nil {
		a.logger.Warn("closing conversation store", "error", err)
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("closing graph store", "error", err)
	}
}

// Serve runs the HTTP server until the context is cancelled.
func Serve(ctx context.Context, opts Options) error {
	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	a.contexts.StartSweeper(ctx)

	srv := server.New(a.pipeline, a.sessions, a.queries, a.worker, a.contexts, a.logger)
	httpServer := &http.Server{
		Addr:    a.settings.Server.Addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", a.settings.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Ask answers a single question from the command line, optionally continuing
// a stored session.
func Ask(ctx context.Context, question, sessionID, userEmail string, opts Options) error {
	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	var history []model.ConversationTurn
	if sessionID != "" {
		history, err = a.sessions.Load(ctx, sessionID)
		if err != nil {
			return err
		}
	}

	user := model.UserContext{Email: userEmail}
	result, err := a.pipeline.Run(ctx, question, user, history)
	if err != nil {
		return err
	}

	fmt.Println(result.Response)
	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "\niterations=%d results=%d duration=%dms completeness=%.2f\n",
			result.Metadata.Iterations, result.Metadata.ResultsCollected,
			result.Metadata.DurationMs, result.Metadata.Completeness)
	}

	if sessionID != "" {
		history = append(history, model.ConversationTurn{
			Query:     question,
			Response:  result.Response,
			Timestamp: time.Now(),
		})
		if err := a.sessions.Save(ctx, sessionID, history); err != nil {
			a.logger.Warn("failed to save session", "sessionId", sessionID, "error", err)
		}
	}
	return nil
}

// Catalog runs one calendar ingestion and prints the report.
func Catalog(ctx context.Context, userEmail, accessToken string, monthsBack int, opts Options) error {
	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	fetchOpts := catalog.DefaultFetchOptions()
	if monthsBack > 0 {
		fetchOpts.MonthsBack = monthsBack
	}

	report, err := a.worker.ProcessCalendarData(ctx,
		model.UserContext{Email: userEmail},
		model.UserTokens{AccessToken: accessToken},
		fetchOpts,
	)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// Tools prints the supported query types.
func Tools() error {
	out, err := json.MarshalIndent(graph.Tools(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
