package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/status"
)

// RequestRepository handles certificate request data access on SQLite
type RequestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new certificate request repository
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, protocol, common_name, tax_id, email, phone, birth_date, applicant_type,
	status, emission_url, rejection_reason, certificate_issued, pfx_data, pfx_password,
	certificate_serial, valid_from, valid_until, created_at, approved_at, issued_at,
	revoked_at, updated_at, version`

// Create creates a new certificate request
func (r *RequestRepository) Create(ctx context.Context, req *models.CertificateRequest) error {
	query := `
		INSERT INTO certificate_requests (
			protocol, common_name, tax_id, email, phone, birth_date,
			applicant_type, status, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if req.Status == "" {
		req.Status = status.Created
	}
	if req.ApplicantType == "" {
		req.ApplicantType = models.ApplicantIndividual
	}

	result, err := r.db.ExecContext(ctx, query,
		req.Protocol,
		req.CommonName,
		req.TaxID,
		req.Email,
		req.Phone,
		req.BirthDate,
		req.ApplicantType,
		string(req.Status),
		now,
		now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("protocol %s: %w", req.Protocol, ErrDuplicate)
		}
		return fmt.Errorf("failed to create certificate request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Version = 1

	return nil
}

// GetByProtocol retrieves a certificate request by its external protocol
func (r *RequestRepository) GetByProtocol(ctx context.Context, protocol string) (*models.CertificateRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM certificate_requests WHERE protocol = ?`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, protocol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certificate request %s: %w", protocol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate request: %w", err)
	}

	return req, nil
}

// List lists certificate requests, newest first
func (r *RequestRepository) List(ctx context.Context, filter ListFilter) ([]*models.CertificateRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM certificate_requests WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, normalizeLimit(filter.Limit))

	return r.query(ctx, query, args...)
}

// ListInFlight lists requests that have not reached a terminal status, oldest first
func (r *RequestRepository) ListInFlight(ctx context.Context, limit int) ([]*models.CertificateRequest, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(terminalStatuses)), ",")
	query := `SELECT ` + requestColumns + ` FROM certificate_requests
		WHERE status NOT IN (` + placeholders + `)
		ORDER BY updated_at ASC LIMIT ?`

	args := append(append([]any{}, terminalStatuses...), normalizeLimit(limit))
	return r.query(ctx, query, args...)
}

// ApplyUpdate writes a status update if the stored version still matches.
// It returns ErrNotFound for an unknown protocol and ErrConflict when another
// writer got there first.
func (r *RequestRepository) ApplyUpdate(ctx context.Context, protocol string, version int64, upd *models.StatusUpdate) (*models.CertificateRequest, error) {
	query := `
		UPDATE certificate_requests SET
			status             = ?,
			approved_at        = COALESCE(?, approved_at),
			emission_url       = COALESCE(?, emission_url),
			issued_at          = COALESCE(?, issued_at),
			certificate_issued = COALESCE(?, certificate_issued),
			pfx_data           = COALESCE(?, pfx_data),
			pfx_password       = COALESCE(?, pfx_password),
			certificate_serial = COALESCE(?, certificate_serial),
			valid_from         = COALESCE(?, valid_from),
			valid_until        = COALESCE(?, valid_until),
			rejection_reason   = COALESCE(?, rejection_reason),
			revoked_at         = COALESCE(?, revoked_at),
			updated_at         = ?,
			version            = version + 1
		WHERE protocol = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(upd.Status),
		utcPtr(upd.ApprovedAt),
		upd.EmissionURL,
		utcPtr(upd.IssuedAt),
		upd.CertificateIssued,
		upd.PFXData,
		upd.PFXPassword,
		upd.CertificateSerial,
		utcPtr(upd.ValidFrom),
		utcPtr(upd.ValidUntil),
		upd.RejectionReason,
		utcPtr(upd.RevokedAt),
		upd.UpdatedAt.UTC(),
		protocol,
		version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update certificate request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	current, err := r.GetByProtocol(ctx, protocol)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("certificate request %s at version %d: %w", protocol, version, ErrConflict)
	}

	return current, nil
}

func (r *RequestRepository) query(ctx context.Context, query string, args ...any) ([]*models.CertificateRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificate requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.CertificateRequest

	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate request: %w", err)
		}
		reqs = append(reqs, req)
	}

	return reqs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.CertificateRequest, error) {
	req := &models.CertificateRequest{}
	var (
		phone, birthDate, emissionURL, rejectionReason sql.NullString
		pfxData, pfxPassword, serial                   sql.NullString
		validFrom, validUntil                          sql.NullTime
		approvedAt, issuedAt, revokedAt                sql.NullTime
		statusValue                                    string
		issued                                         int
	)

	err := row.Scan(
		&req.ID,
		&req.Protocol,
		&req.CommonName,
		&req.TaxID,
		&req.Email,
		&phone,
		&birthDate,
		&req.ApplicantType,
		&statusValue,
		&emissionURL,
		&rejectionReason,
		&issued,
		&pfxData,
		&pfxPassword,
		&serial,
		&validFrom,
		&validUntil,
		&req.CreatedAt,
		&approvedAt,
		&issuedAt,
		&revokedAt,
		&req.UpdatedAt,
		&req.Version,
	)
	if err != nil {
		return nil, err
	}

	req.Status = status.Status(statusValue)
	req.CertificateIssued = issued != 0
	req.Phone = phone.String
	req.BirthDate = birthDate.String
	req.EmissionURL = emissionURL.String
	req.RejectionReason = rejectionReason.String
	req.PFXData = pfxData.String
	req.PFXPassword = pfxPassword.String
	req.CertificateSerial = serial.String
	req.ValidFrom = timePtr(validFrom)
	req.ValidUntil = timePtr(validUntil)
	req.ApprovedAt = timePtr(approvedAt)
	req.IssuedAt = timePtr(issuedAt)
	req.RevokedAt = timePtr(revokedAt)

	return req, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
