package policy

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/pkg/taxid"
)

var protocolPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{1,63}$`)

// FieldError reports which request field failed validation
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

// Validator validates certificate requests before they are registered
type Validator struct{}

// NewValidator creates a new policy validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateNewRequest normalizes req in place and checks it can be tracked.
// An empty applicant type is derived from the tax id.
func (v *Validator) ValidateNewRequest(req *models.CertificateRequest) error {
	req.Protocol = strings.TrimSpace(req.Protocol)
	req.CommonName = strings.TrimSpace(req.CommonName)
	req.Email = strings.TrimSpace(req.Email)

	if !protocolPattern.MatchString(req.Protocol) {
		return invalid("protocol", "must be 2-64 letters, digits, dots, dashes or underscores")
	}
	if req.CommonName == "" {
		return invalid("common_name", "is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return invalid("email", "is not a valid address")
	}
	if err := taxid.Validate(req.TaxID); err != nil {
		return invalid("tax_id", err.Error())
	}

	kind := taxid.Kind(req.TaxID)
	if req.ApplicantType == "" {
		req.ApplicantType = models.ApplicantIndividual
		if kind == taxid.KindCNPJ {
			req.ApplicantType = models.ApplicantOrganization
		}
	}

	switch req.ApplicantType {
	case models.ApplicantIndividual:
		if kind != taxid.KindCPF {
			return invalid("tax_id", "individual applicants must use a CPF")
		}
	case models.ApplicantOrganization:
		if kind != taxid.KindCNPJ {
			return invalid("tax_id", "organization applicants must use a CNPJ")
		}
	default:
		return invalid("applicant_type", "must be individual or organization")
	}

	return nil
}
