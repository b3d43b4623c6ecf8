package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/status"
)

// Compile-time checks that the pgx stores satisfy the repository contracts.
var (
	_ repository.Requests      = (*RequestStore)(nil)
	_ repository.Audits        = (*AuditStore)(nil)
	_ repository.Notifications = (*NotificationStore)(nil)
)

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CERTSYNC_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("CERTSYNC_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func TestPostgresIntegrationRequestLifecycle(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	store := NewRequestStore(pool)

	protocol := fmt.Sprintf("IT%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM certificate_requests WHERE protocol=$1`, protocol)
	})

	req := &models.CertificateRequest{Protocol: protocol, CommonName: "Jane Doe", TaxID: "12345678909", Email: "a@b.com"}
	if err := store.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &models.CertificateRequest{Protocol: protocol, CommonName: "x", TaxID: "1", Email: "x@y.z"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	reason := "doc ilegível"
	rejected, err := store.ApplyUpdate(ctx, protocol, 1, &models.StatusUpdate{Status: status.ValidationRejected, RejectionReason: &reason, UpdatedAt: now})
	if err != nil || rejected.RejectionReason != reason {
		t.Fatalf("expected rejection reason stored, got %+v %v", rejected, err)
	}

	cleared := ""
	issued := true
	updated, err := store.ApplyUpdate(ctx, protocol, 2, &models.StatusUpdate{
		Status:            status.Issued,
		IssuedAt:          &now,
		CertificateIssued: &issued,
		RejectionReason:   &cleared,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !updated.CertificateIssued || updated.Version != 3 || updated.IssuedAt == nil || updated.RejectionReason != "" {
		t.Fatalf("unexpected updated row: %+v", updated)
	}
	if _, err := store.ApplyUpdate(ctx, protocol, 1, &models.StatusUpdate{Status: status.Revoked, UpdatedAt: now}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := store.GetByProtocol(ctx, protocol+"-missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
