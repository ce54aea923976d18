// Command server runs the interview backend HTTP API.
//
// Startup order:
//  1. Load .env (best effort) and configuration from the environment.
//  2. Configure zerolog (level, optional pretty console output).
//  3. Open SQLite, migrate the schema and the workflow checkpoint table.
//  4. Build the question-bank index and the interviewer (Gemini when an API
//     key is configured, a scripted fallback otherwise).
//  5. Wire services, mount routes, and serve with graceful shutdown.
//
// @title        Interview Backend API
// @version      1.0
// @description  Timed, question-by-question AI interview sessions with durable resume and idempotent completion.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/hireloop/go-interview-backend/docs"
	"github.com/hireloop/go-interview-backend/internal/config"
	"github.com/hireloop/go-interview-backend/internal/engine"
	httpapi "github.com/hireloop/go-interview-backend/internal/http"
	"github.com/hireloop/go-interview-backend/internal/observability"
	"github.com/hireloop/go-interview-backend/internal/repo"
	"github.com/hireloop/go-interview-backend/internal/search"
	"github.com/hireloop/go-interview-backend/internal/services"
	"github.com/hireloop/go-interview-backend/internal/sysutil"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Optional .env for local development; real deployments use the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}
	if err := engine.MigrateCheckpoints(db); err != nil {
		log.Fatal().Err(err).Msg("checkpoint migration failed")
	}

	iv := buildInterviewer(ctx, cfg, db)
	runner := engine.NewRunner(engine.NewGormStore(db), iv)

	testSvc := services.NewTestService(db, httpapi.TestRepoShim{}, httpapi.LookupRepoShim{})
	testSvc.CodeLength = cfg.ActivateCodeLen
	testSvc.DefaultTime = cfg.DefaultTestTime
	testSvc.ExpireDays = cfg.ExpireDays
	resultSvc := services.NewResultService(db, httpapi.ResultRepoShim{}, httpapi.LookupRepoShim{}, httpapi.TestRepoShim{})
	sessionSvc := services.NewSessionService(runner, testSvc, resultSvc)
	questionSvc := services.NewQuestionService(db, httpapi.QuestionRepoShim{})

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Services{
		Sessions:  sessionSvc,
		Tests:     testSvc,
		Results:   resultSvc,
		Questions: questionSvc,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildInterviewer selects the interviewer implementation: Gemini when an API
// key is configured, otherwise a scripted interviewer so the service stays
// usable in development and tests.
func buildInterviewer(ctx context.Context, cfg config.Config, db *gorm.DB) engine.Interviewer {
	bank := loadQuestionBank(ctx, db)

	if cfg.GeminiAPIKey != "" {
		iv, err := engine.NewGeminiInterviewer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, bank)
		if err != nil {
			log.Fatal().Err(err).Msg("gemini setup failed")
		}
		log.Info().Str("model", cfg.GeminiModel).Msg("using gemini interviewer")
		return iv
	}

	log.Warn().Msg("GEMINI_API_KEY not set; using scripted interviewer")
	return engine.NewScriptedInterviewer(nil)
}

// loadQuestionBank indexes the stored question bank for retrieval-augmented
// question generation. An empty bank yields an empty index, which is fine.
func loadQuestionBank(ctx context.Context, db *gorm.DB) search.Index {
	questions, err := repo.ListQuestions(ctx, db)
	if err != nil {
		log.Warn().Err(err).Msg("question bank load failed; continuing without")
		questions = nil
	}

	entries := make([]search.Entry, 0, len(questions))
	for _, q := range questions {
		entries = append(entries, search.Entry{
			Text: q.Question,
			Tags: append([]string{q.JobTitle, q.Difficulty}, q.ExaminationPoints...),
		})
	}
	log.Info().Int("questions", len(entries)).Msg("question bank indexed")
	return search.NewIndex(entries)
}
