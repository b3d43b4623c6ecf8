package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signdesk/certsync/internal/auth"
	"github.com/signdesk/certsync/internal/certsync"
	"github.com/signdesk/certsync/internal/config"
	"github.com/signdesk/certsync/internal/notify"
	"github.com/signdesk/certsync/internal/storage"
)

const adminToken = "test-admin-token"

type countingMailer struct {
	sent []*notify.Message
}

func (m *countingMailer) Name() string { return "counting" }

func (m *countingMailer) Send(_ context.Context, msg *notify.Message) (string, error) {
	m.sent = append(m.sent, msg)
	return "id", nil
}

type testEnv struct {
	server *Server
	mailer *countingMailer
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: ":0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "certsync.db")},
		Admin:    config.AdminConfig{Token: adminToken},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	backend, err := storage.Open(context.Background(), cfg.Database)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := &countingMailer{}
	dispatcher := notify.NewDispatcher(mailer, "no-reply@example.com",
		notify.WithRecorder(backend.Notifications), notify.WithLogger(logger))
	engine := certsync.NewEngine(backend.Requests, dispatcher,
		certsync.WithAudit(backend.Audits),
		certsync.WithEmissionBaseURL("https://ar.example"),
		certsync.WithLogger(logger))

	srv := NewServer(cfg, Dependencies{
		Engine:        engine,
		Requests:      backend.Requests,
		Audits:        backend.Audits,
		Notifications: backend.Notifications,
		Logger:        logger,
	})
	return &testEnv{server: srv, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

var admin = map[string]string{"X-Admin-Token": adminToken}

func createRequest(t *testing.T, env *testEnv, protocol string) {
	t.Helper()
	body := `{"protocol":"` + protocol + `","common_name":"Jane Doe","tax_id":"123.456.789-09","email":"a@b.com"}`
	rec := env.do(t, http.MethodPost, "/v1/admin/requests", body, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []string{
		`{"protocol":"UNKNOWN","status":"approved"}`,
		`{"status":"approved"}`,
		`{"protocol":"UNKNOWN","result":"something_new"}`,
	} {
		rec := env.do(t, http.MethodPost, "/webhooks/bry", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", body, rec.Code)
		}
		if strings.TrimSpace(rec.Body.String()) != `{"code":200,"status":"success"}` {
			t.Fatalf("%s: unexpected ack %s", body, rec.Body.String())
		}
	}
	if len(env.mailer.sent) != 0 {
		t.Fatalf("expected no emails, got %d", len(env.mailer.sent))
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/webhooks/bry", `{not json`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["code"] != float64(500) || out["status"] != "error" {
		t.Fatalf("unexpected body %v", out)
	}
}

func TestWebhookAppliesStatusAndNotifies(t *testing.T) {
	env := newTestEnv(t, nil)
	createRequest(t, env, "ABC123")

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/webhooks/bry", `{"protocol":"ABC123","status":"approved"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("webhook: %d", rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/v1/admin/requests/ABC123", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: %d %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["status"] != "approved" {
		t.Fatalf("expected approved, got %v", out["status"])
	}
	if out["emission_url"] != "https://ar.example/protocolo/emissao?cpf=12345678909&protocolo=ABC123" {
		t.Fatalf("unexpected emission url %v", out["emission_url"])
	}
	if _, leaked := out["pfx_password"]; leaked {
		t.Fatalf("bundle password must not be exposed")
	}
	notifications, _ := out["notifications"].([]any)
	if len(notifications) != 2 || len(env.mailer.sent) != 2 {
		t.Fatalf("expected two recorded notifications, got %d (sent %d)", len(notifications), len(env.mailer.sent))
	}

	rec = env.do(t, http.MethodGet, "/v1/requests/ABC123/status", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "approved" {
		t.Fatalf("status endpoint: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/admin/audit?protocol=ABC123", "", admin)
	logs, _ := decode(t, rec)["audit_logs"].([]any)
	if len(logs) != 3 {
		t.Fatalf("expected create + two webhook audit entries, got %d", len(logs))
	}
}

func TestStatusNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/requests/NOPE/status", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if decode(t, rec)["error"] != "not_found" {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}
}

func TestPreflightAndCORS(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodOptions, "/webhooks/bry", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	rec = env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected CORS and request id headers on every response")
	}
}

func TestWebhookToken(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Webhook.TokenHash = auth.HashToken("s3cret")
	})

	rec := env.do(t, http.MethodPost, "/webhooks/bry", `{"status":"approved"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/webhooks/bry?token=s3cret", `{"status":"approved"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/webhooks/bry", `{"status":"approved"}`, map[string]string{"X-Webhook-Token": "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with header token, got %d", rec.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodGet, "/v1/admin/requests", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/v1/admin/requests", "", map[string]string{"X-Admin-Token": "wrong"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/v1/admin/requests", "", admin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdminTOTP(t *testing.T) {
	secret, err := auth.GenerateTOTPSecret("ops")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	env := newTestEnv(t, func(c *config.Config) { c.Admin.TOTPSecret = secret })

	if rec := env.do(t, http.MethodGet, "/v1/admin/audit", "", admin); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without code, got %d", rec.Code)
	}
	code, err := auth.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	rec := env.do(t, http.MethodGet, "/v1/admin/audit", "", map[string]string{"X-Admin-Token": adminToken, "X-Admin-TOTP": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with code, got %d", rec.Code)
	}
}

func TestAdminCreateValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	createRequest(t, env, "P1")

	rec := env.do(t, http.MethodPost, "/v1/admin/requests",
		`{"protocol":"P1","common_name":"Jane","tax_id":"123.456.789-09","email":"a@b.com"}`, admin)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/admin/requests",
		`{"protocol":"P2","common_name":"Jane","tax_id":"123","email":"a@b.com"}`, admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad tax id, got %d", rec.Code)
	}
	body := decode(t, rec)
	details, _ := body["details"].(map[string]any)
	if body["error"] != "validation_failed" || details["field"] != "tax_id" {
		t.Fatalf("expected tax_id validation details, got %s", rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/v1/admin/requests",
		`{"protocol":"P3","common_name":"ACME","tax_id":"11.222.333/0001-81","email":"a@b.com"}`, admin)
	if rec.Code != http.StatusCreated || decode(t, rec)["applicant_type"] != "organization" {
		t.Fatalf("expected organization applicant, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminSyncUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	createRequest(t, env, "P1")
	rec := env.do(t, http.MethodPost, "/v1/admin/requests/P1/sync", "", admin)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without fetcher, got %d", rec.Code)
	}
}

type panickingEngine struct{ Engine }

func (panickingEngine) Process(context.Context, certsync.Event) certsync.Result {
	panic("boom")
}

func TestWebhookPanicReturns500(t *testing.T) {
	cfg := &config.Config{Admin: config.AdminConfig{Token: adminToken}, Logging: config.LoggingConfig{Level: "info"}}
	srv := NewServer(cfg, Dependencies{Engine: panickingEngine{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/bry", strings.NewReader(`{"protocol":"P","status":"approved"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"error"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
