package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/signdesk/certsync/internal/db"
	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/status"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "certsync.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	// Second run must be a no-op on an initialized schema.
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("re-running migrations: %v", err)
	}
	return database
}

func seedRequest(t *testing.T, repo *RequestRepository, protocol string) *models.CertificateRequest {
	t.Helper()
	req := &models.CertificateRequest{
		Protocol:   protocol,
		CommonName: "Jane Doe",
		TaxID:      "123.456.789-09",
		Email:      "a@b.com",
	}
	if err := repo.Create(context.Background(), req); err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

func TestRequestRepositoryCreateAndGet(t *testing.T) {
	repo := NewRequestRepository(openTestDB(t).DB)
	created := seedRequest(t, repo, "ABC123")
	if created.ID == 0 || created.Version != 1 {
		t.Fatalf("expected id and version 1, got %+v", created)
	}

	got, err := repo.GetByProtocol(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != status.Created || got.ApplicantType != models.ApplicantIndividual {
		t.Fatalf("expected defaults, got status=%s type=%s", got.Status, got.ApplicantType)
	}
	if got.ApprovedAt != nil || got.CertificateIssued {
		t.Fatalf("expected empty lifecycle fields, got %+v", got)
	}

	if _, err := repo.GetByProtocol(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	dup := &models.CertificateRequest{Protocol: "ABC123", CommonName: "X", TaxID: "1", Email: "x@y.z"}
	if err := repo.Create(context.Background(), dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRequestRepositoryApplyUpdateKeepsUnsetColumns(t *testing.T) {
	ctx := context.Background()
	repo := NewRequestRepository(openTestDB(t).DB)
	seedRequest(t, repo, "ABC123")

	approvedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	url := "https://ar.example/protocolo/emissao?cpf=12345678909&protocolo=ABC123"
	updated, err := repo.ApplyUpdate(ctx, "ABC123", 1, &models.StatusUpdate{
		Status:      status.Approved,
		ApprovedAt:  &approvedAt,
		EmissionURL: &url,
		UpdatedAt:   approvedAt,
	})
	if err != nil {
		t.Fatalf("apply approved: %v", err)
	}
	if updated.Version != 2 || updated.Status != status.Approved {
		t.Fatalf("expected approved at version 2, got %s v%d", updated.Status, updated.Version)
	}
	if updated.ApprovedAt == nil || !updated.ApprovedAt.Equal(approvedAt) {
		t.Fatalf("expected approved_at %s, got %v", approvedAt, updated.ApprovedAt)
	}

	issuedAt := approvedAt.Add(time.Hour)
	issued := true
	pfx := "MIIbase64"
	updated, err = repo.ApplyUpdate(ctx, "ABC123", 2, &models.StatusUpdate{
		Status:            status.Issued,
		IssuedAt:          &issuedAt,
		CertificateIssued: &issued,
		PFXData:           &pfx,
		UpdatedAt:         issuedAt,
	})
	if err != nil {
		t.Fatalf("apply issued: %v", err)
	}
	if !updated.CertificateIssued || updated.PFXData != pfx {
		t.Fatalf("expected issued bundle persisted, got %+v", updated)
	}
	if updated.EmissionURL != url || updated.ApprovedAt == nil {
		t.Fatalf("expected approval columns preserved, got url=%q approved=%v", updated.EmissionURL, updated.ApprovedAt)
	}
	if updated.PFXPassword != "" {
		t.Fatalf("expected empty password, got %q", updated.PFXPassword)
	}
}

func TestRequestRepositoryApplyUpdateClearsRejectionReason(t *testing.T) {
	ctx := context.Background()
	repo := NewRequestRepository(openTestDB(t).DB)
	seedRequest(t, repo, "ABC123")

	reason := "doc ilegível"
	updated, err := repo.ApplyUpdate(ctx, "ABC123", 1, &models.StatusUpdate{Status: status.ValidationRejected, RejectionReason: &reason, UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if updated.RejectionReason != reason {
		t.Fatalf("expected reason stored, got %q", updated.RejectionReason)
	}

	cleared := ""
	updated, err = repo.ApplyUpdate(ctx, "ABC123", 2, &models.StatusUpdate{Status: status.InValidation, RejectionReason: &cleared, UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if updated.RejectionReason != "" {
		t.Fatalf("expected reason cleared, got %q", updated.RejectionReason)
	}
}

func TestRequestRepositoryApplyUpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRequestRepository(openTestDB(t).DB)
	seedRequest(t, repo, "ABC123")

	upd := &models.StatusUpdate{Status: status.Pending, UpdatedAt: time.Now()}
	if _, err := repo.ApplyUpdate(ctx, "ABC123", 1, upd); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := repo.ApplyUpdate(ctx, "ABC123", 1, upd); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on stale version, got %v", err)
	}
	if _, err := repo.ApplyUpdate(ctx, "nope", 1, upd); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown protocol, got %v", err)
	}
}

func TestRequestRepositoryListInFlight(t *testing.T) {
	ctx := context.Background()
	repo := NewRequestRepository(openTestDB(t).DB)
	seedRequest(t, repo, "P1")
	seedRequest(t, repo, "P2")

	if _, err := repo.ApplyUpdate(ctx, "P2", 1, &models.StatusUpdate{Status: status.Rejected, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	inFlight, err := repo.ListInFlight(ctx, 10)
	if err != nil {
		t.Fatalf("list in flight: %v", err)
	}
	if len(inFlight) != 1 || inFlight[0].Protocol != "P1" {
		t.Fatalf("expected only P1 in flight, got %d", len(inFlight))
	}

	rejected, err := repo.List(ctx, ListFilter{Status: string(status.Rejected)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rejected) != 1 || rejected[0].Protocol != "P2" {
		t.Fatalf("expected P2 rejected, got %d", len(rejected))
	}
}

func TestNotificationAndAuditRepositories(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	notifications := NewNotificationRepository(database.DB)
	audits := NewAuditRepository(database.DB)

	for i := 0; i < 2; i++ {
		n := &models.Notification{Protocol: "ABC123", Status: "approved", Recipient: "a@b.com", Template: "approved", Provider: "log", Success: true}
		if err := notifications.Record(ctx, n); err != nil {
			t.Fatalf("record: %v", err)
		}
		if n.ID == "" {
			t.Fatalf("expected generated id")
		}
	}
	list, err := notifications.ListByProtocol(ctx, "ABC123")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 2 || list[0].ID == list[1].ID {
		t.Fatalf("expected two distinct attempts, got %d", len(list))
	}

	entry := &models.AuditLog{Action: models.ActionWebhookReceived, Protocol: "ABC123", Source: "webhook", Status: "approved", Success: true}
	if err := audits.Create(ctx, entry); err != nil {
		t.Fatalf("audit create: %v", err)
	}
	logs, err := audits.List(ctx, "ABC123", "", 10)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != models.ActionWebhookReceived || !logs[0].Success {
		t.Fatalf("unexpected audit logs: %+v", logs)
	}
}

var (
	_ Requests      = (*RequestRepository)(nil)
	_ Audits        = (*AuditRepository)(nil)
	_ Notifications = (*NotificationRepository)(nil)
)
