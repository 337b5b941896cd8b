package api

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"quantumlab/internal/auth"
	"quantumlab/internal/config"
	"quantumlab/internal/models"
	"quantumlab/internal/pipeline"
	"quantumlab/internal/service/account"
	"quantumlab/internal/service/ai"
	"quantumlab/internal/service/chat"
	"quantumlab/internal/service/exam"
	"quantumlab/internal/storage"
)

type fakeAnalyzer struct {
	analysis *models.Analysis
	err      error
	lastJob  *pipeline.Job
}

func (f *fakeAnalyzer) Run(_ context.Context, job *pipeline.Job) (*models.Analysis, error) {
	f.lastJob = job
	job.Cleanup()
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

type fakeChatter struct {
	reply string
}

func (f *fakeChatter) Chat(_ context.Context, _ string, _ []*models.Message, _ ai.Options) (string, error) {
	return f.reply, nil
}

func sampleAnalysis() *models.Analysis {
	a := &models.Analysis{
		Patient:         models.PatientRecord{Name: "Jane Roe", Age: "41", Sex: "F", Weight: "70", Height: "175", BMI: "22.9"},
		Summary:         "stable",
		Systems:         map[string]string{"hepatic": "mild ALT elevation"},
		Severity:        models.SeverityLow,
		Recommendations: []string{"hydration"},
	}
	a.SchemaComplete()
	return a
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *fakeAnalyzer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	accounts := account.NewService(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	exams := exam.NewService(db)
	chatSvc := chat.NewService(&fakeChatter{reply: "drink water"}, chat.NewMemoryHistoryStore(), 10, 500)
	analyzer := &fakeAnalyzer{analysis: sampleAnalysis()}

	handler := NewHandler(accounts, authSvc, exams, chatSvc, analyzer, t.TempDir())
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, analyzer
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doArchiveUpload(t *testing.T, router *gin.Engine, fileName string, entries map[string]string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("zip", fileName)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(zipBuf.Bytes()); err != nil {
		t.Fatalf("form write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("form close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/exams/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func registerAndLogin(t *testing.T, router *gin.Engine, username, password string, adminHeaders map[string]string) (int64, map[string]string) {
	t.Helper()
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, adminHeaders)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token from login")
	}
	return regBody.ID, map[string]string{"Authorization": fmt.Sprintf("Bearer %s", loginBody.AuthToken)}
}

func TestAnalyzeEndToEnd(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	_, headers := registerAndLogin(t, router, "alice", "pass123", nil)

	// Validate token.
	valResp := doJSONRequest(t, router, http.MethodGet, "/api/auth/validate", nil, headers)
	assertStatus(t, valResp, http.StatusOK)
	var valBody struct {
		Role string `json:"role"`
	}
	decodeJSON(t, valResp.Body.Bytes(), &valBody)
	if valBody.Role != models.UserRoleAdmin {
		t.Fatalf("first user should be admin, got %q", valBody.Role)
	}

	// Analyze an archive.
	upResp := doArchiveUpload(t, router, "labs.zip", map[string]string{
		"labs.json": `{"paciente": "Jane Roe", "glucosa": 180}`,
	}, headers)
	assertStatus(t, upResp, http.StatusCreated)
	var examBody models.Exam
	decodeJSON(t, upResp.Body.Bytes(), &examBody)
	if examBody.ID <= 0 {
		t.Fatalf("expected exam id")
	}
	if len(examBody.Analysis.Systems) != len(models.RequiredSystems) {
		t.Fatalf("expected complete system map, got %d keys", len(examBody.Analysis.Systems))
	}

	// List exams.
	listResp := doJSONRequest(t, router, http.MethodGet, "/api/exams", nil, headers)
	assertStatus(t, listResp, http.StatusOK)
	var listBody struct {
		Exams []models.Exam `json:"exams"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listBody)
	if len(listBody.Exams) != 1 {
		t.Fatalf("expected 1 exam, got %d", len(listBody.Exams))
	}

	// Fetch it by id.
	getResp := doJSONRequest(t, router, http.MethodGet, fmt.Sprintf("/api/exams/%d", examBody.ID), nil, headers)
	assertStatus(t, getResp, http.StatusOK)

	// Unknown id.
	missResp := doJSONRequest(t, router, http.MethodGet, "/api/exams/9999", nil, headers)
	assertStatus(t, missResp, http.StatusNotFound)
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router, "alice", "pass123", nil)

	// Missing file.
	req := httptest.NewRequest(http.MethodPost, "/api/exams/analyze", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)

	// Wrong extension.
	extResp := doArchiveUpload(t, router, "labs.rar", map[string]string{"a.json": "{}"}, headers)
	assertStatus(t, extResp, http.StatusBadRequest)

	// Unauthorized.
	anonResp := doArchiveUpload(t, router, "labs.zip", map[string]string{"a.json": "{}"}, nil)
	assertStatus(t, anonResp, http.StatusUnauthorized)
}

func TestAnalyzeErrorMapping(t *testing.T) {
	router, db, analyzer := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router, "alice", "pass123", nil)

	cases := []struct {
		err  error
		want int
	}{
		{pipeline.ErrExtraction, http.StatusBadRequest},
		{pipeline.ErrNoData, http.StatusUnprocessableEntity},
		{pipeline.ErrUpstream, http.StatusBadGateway},
		{pipeline.ErrMalformedResponse, http.StatusBadGateway},
		{pipeline.ErrStorage, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		analyzer.err = tc.err
		resp := doArchiveUpload(t, router, "labs.zip", map[string]string{"a.json": "{}"}, headers)
		assertStatus(t, resp, tc.want)
	}
}

func TestRegistrationRequiresAdminAfterBootstrap(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	_, adminHeaders := registerAndLogin(t, router, "alice", "pass123", nil)

	// Anonymous registration is closed once a user exists.
	anonResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "mallory",
		"password": "pass123",
	}, nil)
	assertStatus(t, anonResp, http.StatusUnauthorized)

	// Admin can register users.
	userID, userHeaders := registerAndLogin(t, router, "bob", "pass123", adminHeaders)
	if userID <= 0 {
		t.Fatalf("expected user id")
	}

	// Plain users cannot register or list users.
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "carol",
		"password": "pass123",
	}, userHeaders)
	assertStatus(t, regResp, http.StatusForbidden)

	listResp := doJSONRequest(t, router, http.MethodGet, "/api/auth/users", nil, userHeaders)
	assertStatus(t, listResp, http.StatusForbidden)

	// Admin lists and deletes.
	adminList := doJSONRequest(t, router, http.MethodGet, "/api/auth/users", nil, adminHeaders)
	assertStatus(t, adminList, http.StatusOK)

	delResp := doJSONRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/auth/users/%d", userID), nil, adminHeaders)
	assertStatus(t, delResp, http.StatusOK)

	// The primary admin is protected.
	selfResp := doJSONRequest(t, router, http.MethodDelete, "/api/auth/users/1", nil, adminHeaders)
	assertStatus(t, selfResp, http.StatusForbidden)
}

func TestChatFlow(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router, "alice", "pass123", nil)

	sendResp := doJSONRequest(t, router, http.MethodPost, "/api/chat/message", map[string]string{
		"message": "what does high glucose mean?",
	}, headers)
	assertStatus(t, sendResp, http.StatusOK)
	var sendBody struct {
		Reply models.Message `json:"reply"`
	}
	decodeJSON(t, sendResp.Body.Bytes(), &sendBody)
	if sendBody.Reply.Content != "drink water" {
		t.Fatalf("unexpected reply %q", sendBody.Reply.Content)
	}

	histResp := doJSONRequest(t, router, http.MethodGet, "/api/chat/history", nil, headers)
	assertStatus(t, histResp, http.StatusOK)
	var histBody struct {
		History []models.Message `json:"history"`
	}
	decodeJSON(t, histResp.Body.Bytes(), &histBody)
	if len(histBody.History) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(histBody.History))
	}

	clearResp := doJSONRequest(t, router, http.MethodDelete, "/api/chat/history", nil, headers)
	assertStatus(t, clearResp, http.StatusOK)

	histResp = doJSONRequest(t, router, http.MethodGet, "/api/chat/history", nil, headers)
	assertStatus(t, histResp, http.StatusOK)
	histBody.History = nil
	decodeJSON(t, histResp.Body.Bytes(), &histBody)
	if len(histBody.History) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(histBody.History))
	}

	// Empty message is a client error.
	badResp := doJSONRequest(t, router, http.MethodPost, "/api/chat/message", map[string]string{
		"message": "   ",
	}, headers)
	assertStatus(t, badResp, http.StatusBadRequest)
}

func doCookieJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, cookies []*http.Cookie, csrfHeader string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if csrfHeader != "" {
		req.Header.Set("X-CSRF-Token", csrfHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCookieSessionRequiresCSRFToken(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	registerAndLogin(t, router, "alice", "pass123", nil)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "pass123",
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	cookies := loginResp.Result().Cookies()
	var csrfToken string
	for _, c := range cookies {
		if c.Name == "csrf_token" {
			csrfToken = c.Value
		}
	}
	if csrfToken == "" {
		t.Fatalf("login did not set a csrf cookie")
	}

	message := map[string]string{"message": "what does high glucose mean?"}

	// Cookie session without the echoed header is rejected.
	noHeader := doCookieJSONRequest(t, router, http.MethodPost, "/api/chat/message", message, cookies, "")
	assertStatus(t, noHeader, http.StatusForbidden)

	// A mismatched header is rejected.
	mismatch := doCookieJSONRequest(t, router, http.MethodPost, "/api/chat/message", message, cookies, "not-the-token")
	assertStatus(t, mismatch, http.StatusForbidden)

	// Echoing the cookie value passes.
	ok := doCookieJSONRequest(t, router, http.MethodPost, "/api/chat/message", message, cookies, csrfToken)
	assertStatus(t, ok, http.StatusOK)

	// Reads never need the header.
	hist := doCookieJSONRequest(t, router, http.MethodGet, "/api/chat/history", nil, cookies, "")
	assertStatus(t, hist, http.StatusOK)
}

func TestLogoutRevokesToken(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router, "alice", "pass123", nil)

	logoutResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/logout", nil, headers)
	assertStatus(t, logoutResp, http.StatusOK)

	valResp := doJSONRequest(t, router, http.MethodGet, "/api/auth/validate", nil, headers)
	assertStatus(t, valResp, http.StatusUnauthorized)
}
