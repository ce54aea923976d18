// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, compression,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected by the
//     caller (services are constructed in main, never inside the router)
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/config"
	"github.com/hireloop/go-interview-backend/internal/domain"
	"github.com/hireloop/go-interview-backend/internal/http/handlers"
	"github.com/hireloop/go-interview-backend/internal/http/middleware"
	"github.com/hireloop/go-interview-backend/internal/repo"
)

// TestRepoShim adapts the repository free functions to the services.TestRepo
// interface expected by the TestService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type TestRepoShim struct{}

// Create proxies repo.CreateTest.
func (TestRepoShim) Create(ctx context.Context, db *gorm.DB, t *domain.Test) error {
	return repo.CreateTest(ctx, db, t)
}

// Get proxies repo.GetTest.
func (TestRepoShim) Get(ctx context.Context, db *gorm.DB, id string) (*domain.Test, error) {
	return repo.GetTest(ctx, db, id)
}

// GetByActivateCode proxies repo.GetTestByActivateCode.
func (TestRepoShim) GetByActivateCode(ctx context.Context, db *gorm.DB, code string) (*domain.Test, error) {
	return repo.GetTestByActivateCode(ctx, db, code)
}

// Save proxies repo.SaveTest.
func (TestRepoShim) Save(ctx context.Context, db *gorm.DB, t *domain.Test) error {
	return repo.SaveTest(ctx, db, t)
}

// Delete proxies repo.DeleteTest.
func (TestRepoShim) Delete(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteTest(ctx, db, id)
}

// UpdateStatus proxies repo.UpdateTestStatus.
func (TestRepoShim) UpdateStatus(ctx context.Context, db *gorm.DB, id string, status domain.TestStatus) (*domain.Test, error) {
	return repo.UpdateTestStatus(ctx, db, id, status)
}

// Count proxies repo.CountTests.
func (TestRepoShim) Count(ctx context.Context, db *gorm.DB, filter map[string]any) (int64, error) {
	return repo.CountTests(ctx, db, filter)
}

// ListPage proxies repo.ListTestsPage.
func (TestRepoShim) ListPage(ctx context.Context, db *gorm.DB, filter map[string]any, offset, limit int) ([]domain.Test, error) {
	return repo.ListTestsPage(ctx, db, filter, offset, limit)
}

// LookupRepoShim adapts the read-side lookup functions to services.LookupRepo.
type LookupRepoShim struct{}

// GetJob proxies repo.GetJob.
func (LookupRepoShim) GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error) {
	return repo.GetJob(ctx, db, id)
}

// GetUser proxies repo.GetUser.
func (LookupRepoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// ResultRepoShim adapts the result functions to services.ResultRepo.
type ResultRepoShim struct{}

// Upsert proxies repo.UpsertResult.
func (ResultRepoShim) Upsert(ctx context.Context, db *gorm.DB, r *domain.TestResult) (*domain.TestResult, error) {
	return repo.UpsertResult(ctx, db, r)
}

// GetByTestID proxies repo.GetResultByTestID.
func (ResultRepoShim) GetByTestID(ctx context.Context, db *gorm.DB, testID string) (*domain.TestResult, error) {
	return repo.GetResultByTestID(ctx, db, testID)
}

// ListByUserID proxies repo.ListResultsByUserID.
func (ResultRepoShim) ListByUserID(ctx context.Context, db *gorm.DB, userID string) ([]domain.TestResult, error) {
	return repo.ListResultsByUserID(ctx, db, userID)
}

// QuestionRepoShim adapts the question-bank functions to services.QuestionRepo.
type QuestionRepoShim struct{}

// Create proxies repo.CreateQuestion.
func (QuestionRepoShim) Create(ctx context.Context, db *gorm.DB, q *domain.Question) error {
	return repo.CreateQuestion(ctx, db, q)
}

// List proxies repo.ListQuestions.
func (QuestionRepoShim) List(ctx context.Context, db *gorm.DB) ([]domain.Question, error) {
	return repo.ListQuestions(ctx, db)
}

// ListByJobTitle proxies repo.ListQuestionsByJobTitle.
func (QuestionRepoShim) ListByJobTitle(ctx context.Context, db *gorm.DB, jobTitle string) ([]domain.Question, error) {
	return repo.ListQuestionsByJobTitle(ctx, db, jobTitle)
}

// Services bundles the injected application services the router mounts.
// Construction happens in main so wiring (engine, interviewer, repos) stays
// out of the transport layer.
type Services struct {
	Sessions  handlers.SessionService
	Tests     handlers.TestService
	Results   handlers.ResultService
	Questions handlers.QuestionService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with sensitive-header masking
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. Gzip, CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svcs Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging; activation codes and API keys never hit logs
	r.Use(middleware.LoggerWith(middleware.LoggerOptions{
		LogHeaders:  []string{"X-Test-ID", "Idempotency-Key", "X-API-Key"},
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, testID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, testID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per user/IP; probes and scrapers exempt
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Exempt("/health", "/metrics")
	r.Use(rl.Handler())

	// 9) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Test-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Test-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Interview content and scores are never cacheable; test listings keep
	// their ETag flow.
	base := strings.TrimSuffix(cfg.APIBasePath, "/")
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStore:         false,
		EnablePolicy:    true,
		NoStorePrefixes: []string{base + "/chat", base + "/results"},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (off by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svcs.Sessions, svcs.Tests, svcs.Results).
		WithQuestions(svcs.Questions).
		WithIdempotencyRecorder(func(ctx context.Context, userID, testID, key, responseID string, status int) error {
			_, err := repo.CreateIdempotency(ctx, db, userID, testID, key, responseID, status, cfg.IdempotencyTTL)
			if errors.Is(err, repo.ErrDuplicate) {
				// Concurrent retry recorded the key first; that record wins.
				return nil
			}
			return err
		})

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Interview sessions
		api.POST("/chat/start", h.StartChat)
		api.POST("/chat/answer", h.SubmitAnswer)

		// Tests
		api.POST("/tests", h.CreateTest)
		api.GET("/tests", h.ListTests)
		api.GET("/tests/activate/:code", h.ActivateTest)
		api.GET("/tests/:id", h.GetTest)
		api.PUT("/tests/:id", h.UpdateTest)
		api.DELETE("/tests/:id", h.DeleteTest)

		// Question bank
		api.POST("/questions", h.CreateQuestion)
		api.GET("/questions", h.ListQuestions)

		// Results
		api.POST("/results", h.CreateResult)
		api.GET("/results/:test_id", h.GetResult)
		api.GET("/users/:user_id/results", h.ListUserResults)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
