package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/status"
)

const uniqueViolation = "23505"

// RequestStore handles certificate request persistence on Postgres
type RequestStore struct {
	DB *pgxpool.Pool
}

// NewRequestStore creates a new request store
func NewRequestStore(db *pgxpool.Pool) *RequestStore {
	return &RequestStore{DB: db}
}

const requestColumns = `
  id, protocol, common_name, tax_id, email, phone, birth_date, applicant_type,
  status, emission_url, rejection_reason, certificate_issued, pfx_data, pfx_password,
  certificate_serial, valid_from, valid_until, created_at, approved_at, issued_at,
  revoked_at, updated_at, version`

// Create inserts a new certificate request.
// It returns ErrDuplicate when the protocol is already tracked.
func (s *RequestStore) Create(ctx context.Context, req *models.CertificateRequest) error {
	if req.Status == "" {
		req.Status = status.Created
	}
	if req.ApplicantType == "" {
		req.ApplicantType = models.ApplicantIndividual
	}
	now := time.Now().UTC()

	err := s.DB.QueryRow(ctx, `
INSERT INTO certificate_requests(
  protocol, common_name, tax_id, email, phone, birth_date, applicant_type, status, created_at, updated_at
)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING id
`, req.Protocol, req.CommonName, req.TaxID, req.Email, req.Phone, req.BirthDate, req.ApplicantType, string(req.Status), now).Scan(&req.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("protocol %s: %w", req.Protocol, repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create certificate request: %w", err)
	}
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Version = 1
	return nil
}

// GetByProtocol retrieves a request by its AR protocol
func (s *RequestStore) GetByProtocol(ctx context.Context, protocol string) (*models.CertificateRequest, error) {
	req, err := scanRequest(s.DB.QueryRow(ctx, `SELECT `+requestColumns+` FROM certificate_requests WHERE protocol=$1`, protocol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("certificate request %s: %w", protocol, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get certificate request: %w", err)
	}
	return req, nil
}

// List retrieves requests, newest first, optionally filtered by status
func (s *RequestStore) List(ctx context.Context, filter repository.ListFilter) ([]*models.CertificateRequest, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.DB.Query(ctx, `
SELECT `+requestColumns+`
FROM certificate_requests
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2
`, filter.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificate requests: %w", err)
	}
	return collectRequests(rows)
}

// ListInFlight retrieves non-terminal requests, least recently updated first
func (s *RequestStore) ListInFlight(ctx context.Context, limit int) ([]*models.CertificateRequest, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	terminal := []string{string(status.Issued), string(status.Rejected), string(status.Revoked)}
	rows, err := s.DB.Query(ctx, `
SELECT `+requestColumns+`
FROM certificate_requests
WHERE status <> ALL($1)
ORDER BY updated_at ASC
LIMIT $2
`, terminal, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight requests: %w", err)
	}
	return collectRequests(rows)
}

// ApplyUpdate writes a status update if the stored version still matches.
// Nil fields keep their stored value.
func (s *RequestStore) ApplyUpdate(ctx context.Context, protocol string, version int64, upd *models.StatusUpdate) (*models.CertificateRequest, error) {
	req, err := scanRequest(s.DB.QueryRow(ctx, `
UPDATE certificate_requests SET
  status=$1,
  approved_at=COALESCE($2, approved_at),
  emission_url=COALESCE($3, emission_url),
  issued_at=COALESCE($4, issued_at),
  certificate_issued=COALESCE($5, certificate_issued),
  pfx_data=COALESCE($6, pfx_data),
  pfx_password=COALESCE($7, pfx_password),
  certificate_serial=COALESCE($8, certificate_serial),
  valid_from=COALESCE($9, valid_from),
  valid_until=COALESCE($10, valid_until),
  rejection_reason=COALESCE($11, rejection_reason),
  revoked_at=COALESCE($12, revoked_at),
  updated_at=$13,
  version=version+1
WHERE protocol=$14 AND version=$15
RETURNING `+requestColumns,
		string(upd.Status), upd.ApprovedAt, upd.EmissionURL, upd.IssuedAt, upd.CertificateIssued,
		upd.PFXData, upd.PFXPassword, upd.CertificateSerial, upd.ValidFrom, upd.ValidUntil,
		upd.RejectionReason, upd.RevokedAt, upd.UpdatedAt.UTC(), protocol, version))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update certificate request: %w", err)
	}
	if _, getErr := s.GetByProtocol(ctx, protocol); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("certificate request %s at version %d: %w", protocol, version, repository.ErrConflict)
}

func collectRequests(rows pgx.Rows) ([]*models.CertificateRequest, error) {
	defer rows.Close()
	var out []*models.CertificateRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*models.CertificateRequest, error) {
	var (
		req                                            models.CertificateRequest
		phone, birthDate, emissionURL, rejectionReason *string
		pfxData, pfxPassword, serial                   *string
		statusValue                                    string
	)
	err := row.Scan(
		&req.ID, &req.Protocol, &req.CommonName, &req.TaxID, &req.Email, &phone, &birthDate, &req.ApplicantType,
		&statusValue, &emissionURL, &rejectionReason, &req.CertificateIssued, &pfxData, &pfxPassword,
		&serial, &req.ValidFrom, &req.ValidUntil, &req.CreatedAt, &req.ApprovedAt, &req.IssuedAt,
		&req.RevokedAt, &req.UpdatedAt, &req.Version,
	)
	if err != nil {
		return nil, err
	}
	req.Status = status.Status(statusValue)
	req.Phone = deref(phone)
	req.BirthDate = deref(birthDate)
	req.EmissionURL = deref(emissionURL)
	req.RejectionReason = deref(rejectionReason)
	req.PFXData = deref(pfxData)
	req.PFXPassword = deref(pfxPassword)
	req.CertificateSerial = deref(serial)
	return &req, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
