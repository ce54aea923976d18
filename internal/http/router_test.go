package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hireloop/go-interview-backend/internal/config"
	"github.com/hireloop/go-interview-backend/internal/domain"
	"github.com/hireloop/go-interview-backend/internal/engine"
	"github.com/hireloop/go-interview-backend/internal/http/middleware"
	"github.com/hireloop/go-interview-backend/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newRouterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Test{}, &domain.TestResult{}, &domain.Question{},
		&domain.Job{}, &domain.User{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := engine.MigrateCheckpoints(db); err != nil {
		t.Fatalf("migrate checkpoints: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      50,
		IdempotencyTTL: 24 * time.Hour,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

// wireServices assembles the real service graph over db, the way main does,
// with the deterministic scripted interviewer standing in for the model.
func wireServices(db *gorm.DB) Services {
	testSvc := services.NewTestService(db, TestRepoShim{}, LookupRepoShim{})
	resultSvc := services.NewResultService(db, ResultRepoShim{}, LookupRepoShim{}, TestRepoShim{})
	runner := engine.NewRunner(engine.NewGormStore(db), engine.NewScriptedInterviewer(nil))
	sessionSvc := services.NewSessionService(runner, testSvc, resultSvc)
	questionSvc := services.NewQuestionService(db, QuestionRepoShim{})
	return Services{Sessions: sessionSvc, Tests: testSvc, Results: resultSvc, Questions: questionSvc}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newRouterDB(t)
	RegisterRoutes(r, db, wireServices(db), testConfig())

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newRouterDB(t)
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, db, wireServices(db), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

// TestRegisterRoutes_FullInterviewFlow drives an interview end to end through
// the mounted API: issue a test, activate its code, run the conversation to
// completion, then read back the recorded result.
func TestRegisterRoutes_FullInterviewFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newRouterDB(t)
	RegisterRoutes(r, db, wireServices(db), testConfig())

	post := func(path string, body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// Issue a 15-minute test (3-question interview).
	w := post("/api/v1/tests", gin.H{
		"type":       "interview",
		"language":   "en",
		"difficulty": "medium",
		"user_id":    "u1",
		"test_time":  15,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create test = %d body=%s", w.Code, w.Body.String())
	}
	var created domain.Test
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode test: %v", err)
	}
	if created.ActivateCode == "" {
		t.Fatalf("no activation code allocated: %+v", created)
	}

	// The code resolves while the test is not completed.
	if w := get("/api/v1/tests/activate/" + created.ActivateCode); w.Code != http.StatusOK {
		t.Fatalf("activate = %d body=%s", w.Code, w.Body.String())
	}

	// Start the session; the first question comes back with a token.
	w = post("/api/v1/chat/start", gin.H{"test_id": created.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("chat/start = %d body=%s", w.Code, w.Body.String())
	}
	var reply services.SessionReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.IsOver || reply.Feedback == "" || reply.QuestionToken == "" {
		t.Fatalf("first question unexpected: %+v", reply)
	}

	// Starting again replays the same question with the same token.
	w = post("/api/v1/chat/start", gin.H{"test_id": created.ID})
	var replay services.SessionReply
	_ = json.Unmarshal(w.Body.Bytes(), &replay)
	if replay.QuestionToken != reply.QuestionToken {
		t.Fatalf("replayed token differs: %q vs %q", replay.QuestionToken, reply.QuestionToken)
	}

	// Answer until the interview concludes.
	for i := 0; i < 3; i++ {
		w = post("/api/v1/chat/answer", gin.H{"test_id": created.ID, "answer": fmt.Sprintf("answer %d", i+1)})
		if w.Code != http.StatusOK {
			t.Fatalf("chat/answer %d = %d body=%s", i+1, w.Code, w.Body.String())
		}
		if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
			t.Fatalf("decode reply: %v", err)
		}
	}
	if !reply.IsOver || reply.Type != services.ReplyTypeResult {
		t.Fatalf("interview did not conclude: %+v", reply)
	}

	// The result row exists and the test is now completed.
	w = get("/api/v1/results/" + created.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("get result = %d body=%s", w.Code, w.Body.String())
	}
	var res domain.TestResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.TestID != created.ID || res.QuestionNumber != 3 {
		t.Fatalf("result unexpected: %+v", res)
	}

	w = get("/api/v1/tests/" + created.ID)
	var after domain.Test
	_ = json.Unmarshal(w.Body.Bytes(), &after)
	if after.Status != domain.TestStatusCompleted {
		t.Fatalf("test not completed: %+v", after)
	}

	// Completed tests are no longer activatable.
	if w := get("/api/v1/tests/activate/" + created.ActivateCode); w.Code != http.StatusNotFound {
		t.Fatalf("completed code must 404, got %d", w.Code)
	}

	// A repeated final answer replays the closing payload, no second result.
	w = post("/api/v1/chat/answer", gin.H{"test_id": created.ID, "answer": "again"})
	if w.Code != http.StatusOK {
		t.Fatalf("replayed answer = %d", w.Code)
	}
	var count int64
	if err := db.Model(&domain.TestResult{}).Where("test_id = ?", created.ID).Count(&count).Error; err != nil || count != 1 {
		t.Fatalf("expected exactly one result row, got %d err=%v", count, err)
	}
}

// TestRegisterRoutes_AnswerRetryIsReplayed retries an answer submission with
// the same Idempotency-Key and checks the retry redisplays the pending
// question instead of advancing the interview a second time.
func TestRegisterRoutes_AnswerRetryIsReplayed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newRouterDB(t)
	RegisterRoutes(r, db, wireServices(db), testConfig())

	post := func(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post("/api/v1/tests", gin.H{
		"type": "interview", "language": "en", "difficulty": "medium",
		"user_id": "u1", "test_time": 15,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create test = %d body=%s", w.Code, w.Body.String())
	}
	var created domain.Test
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	if w := post("/api/v1/chat/start", gin.H{"test_id": created.ID}, nil); w.Code != http.StatusOK {
		t.Fatalf("chat/start = %d body=%s", w.Code, w.Body.String())
	}

	hdr := map[string]string{
		middleware.HeaderIdempotencyKey: "retry-1",
		"X-Test-ID":                     created.ID,
	}
	w = post("/api/v1/chat/answer", gin.H{"test_id": created.ID, "answer": "first"}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("chat/answer = %d body=%s", w.Code, w.Body.String())
	}
	var first services.SessionReply
	_ = json.Unmarshal(w.Body.Bytes(), &first)
	if first.QuestionToken == "" {
		t.Fatalf("expected a next question: %+v", first)
	}

	// Same key again: the answer must not be applied twice.
	w = post("/api/v1/chat/answer", gin.H{"test_id": created.ID, "answer": "first"}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("retried answer = %d body=%s", w.Code, w.Body.String())
	}
	var retried services.SessionReply
	_ = json.Unmarshal(w.Body.Bytes(), &retried)
	if retried.QuestionToken != first.QuestionToken {
		t.Fatalf("retry advanced the interview: %q vs %q", retried.QuestionToken, first.QuestionToken)
	}

	var keys int64
	if err := db.Model(&domain.Idempotency{}).Count(&keys).Error; err != nil || keys != 1 {
		t.Fatalf("expected one stored key, got %d err=%v", keys, err)
	}

	// A fresh key moves the interview forward.
	hdr[middleware.HeaderIdempotencyKey] = "retry-2"
	w = post("/api/v1/chat/answer", gin.H{"test_id": created.ID, "answer": "second"}, hdr)
	var next services.SessionReply
	_ = json.Unmarshal(w.Body.Bytes(), &next)
	if w.Code != http.StatusOK || next.QuestionToken == first.QuestionToken {
		t.Fatalf("fresh key must advance: code=%d reply=%+v", w.Code, next)
	}
}

// TestRegisterRoutes_UserResultsETag checks the conditional GET flow on a
// user's result listing.
func TestRegisterRoutes_UserResultsETag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newRouterDB(t)
	RegisterRoutes(r, db, wireServices(db), testConfig())

	res := domain.TestResult{
		ID:        uuid.NewString(),
		TestID:    uuid.NewString(),
		UserID:    "etag-user",
		Score:     72,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Create(&res).Error; err != nil {
		t.Fatalf("seed result: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/etag-user/results", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list results = %d body=%s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected an ETag header")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/etag-user/results", nil)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}
}

func TestRegisterRoutes_QuestionBank(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newRouterDB(t)
	RegisterRoutes(r, db, wireServices(db), testConfig())

	raw, _ := json.Marshal(gin.H{
		"question":  "What is a goroutine?",
		"job_title": "Backend Engineer",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create question = %d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/questions?job_title=Backend+Engineer", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list questions = %d body=%s", w.Code, w.Body.String())
	}
	var items []domain.Question
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Question != "What is a goroutine?" {
		t.Fatalf("listing unexpected: %+v", items)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, prefix := range []string{"", "/", "/api/v1"} {
		r := gin.New()
		g := groupWithPrefix(r, prefix)
		g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

		path := "/ping"
		if prefix != "" && prefix != "/" {
			path = prefix + "/ping"
		}
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("prefix %q: GET %s = %d", prefix, path, w.Code)
		}
	}
}
