package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/signdesk/certsync/internal/status"
)

// Template names, one per notified status
const (
	TemplateApproved           = "approved"
	TemplateIssued             = "issued"
	TemplateRejected           = "rejected"
	TemplateValidationRejected = "validation_rejected"
	TemplateRevoked            = "revoked"
	TemplateInValidation       = "in_validation"
)

// templateConfig drives the shared layout for one status
type templateConfig struct {
	Name       string
	Subject    string
	Title      string
	Accent     string
	Paragraphs []string
	ShowReason bool
	CTALabel   string // rendered only when the notice carries an emission URL
}

// templateFor selects the email for a status. Statuses without an email return false.
func templateFor(s status.Status) (templateConfig, bool) {
	switch s {
	case status.Approved:
		return templateConfig{
			Name:    TemplateApproved,
			Subject: "Solicitação aprovada - emita seu certificado digital",
			Title:   "Sua solicitação foi aprovada",
			Accent:  "#16a34a",
			Paragraphs: []string{
				"A validação dos seus dados foi concluída e o certificado digital já pode ser emitido.",
				"Use o botão abaixo para acessar a página de emissão da autoridade certificadora.",
			},
			CTALabel: "Emitir certificado",
		}, true
	case status.Issued:
		return templateConfig{
			Name:    TemplateIssued,
			Subject: "Certificado digital emitido",
			Title:   "Seu certificado foi emitido",
			Accent:  "#2563eb",
			Paragraphs: []string{
				"O certificado digital vinculado a esta solicitação foi emitido com sucesso.",
				"Guarde a senha do arquivo em local seguro. Ela é necessária para instalar o certificado.",
			},
		}, true
	case status.Rejected:
		return templateConfig{
			Name:    TemplateRejected,
			Subject: "Solicitação de certificado recusada",
			Title:   "Sua solicitação foi recusada",
			Accent:  "#dc2626",
			Paragraphs: []string{
				"A autoridade certificadora recusou esta solicitação e ela não seguirá para emissão.",
				"Se precisar de um certificado, abra uma nova solicitação com os dados corrigidos.",
			},
			ShowReason: true,
		}, true
	case status.ValidationRejected:
		return templateConfig{
			Name:    TemplateValidationRejected,
			Subject: "Pendência na validação da sua solicitação",
			Title:   "Encontramos uma pendência na validação",
			Accent:  "#d97706",
			Paragraphs: []string{
				"A validação dos seus documentos não foi aprovada.",
				"Corrija as informações indicadas para que a análise seja retomada.",
			},
			ShowReason: true,
		}, true
	case status.Revoked:
		return templateConfig{
			Name:    TemplateRevoked,
			Subject: "Certificado digital revogado",
			Title:   "Seu certificado foi revogado",
			Accent:  "#6b7280",
			Paragraphs: []string{
				"O certificado digital vinculado a esta solicitação foi revogado e não pode mais ser utilizado.",
			},
		}, true
	case status.InValidation:
		return templateConfig{
			Name:    TemplateInValidation,
			Subject: "Sua solicitação está em validação",
			Title:   "Recebemos seus dados",
			Accent:  "#0891b2",
			Paragraphs: []string{
				"Sua solicitação está em análise pela autoridade certificadora.",
				"Avisaremos por email assim que houver uma atualização.",
			},
		}, true
	case status.Created, status.Pending, status.PendingAuthentication:
		return templateConfig{}, false
	}
	return templateConfig{}, false
}

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<body style="margin:0;padding:0;background:#f4f4f5;font-family:Arial,Helvetica,sans-serif;">
<table width="100%" cellpadding="0" cellspacing="0" style="padding:24px 0;">
<tr><td align="center">
<table width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background:{{.Accent}};color:#ffffff;padding:20px 32px;font-size:18px;font-weight:bold;">{{.Brand}}</td></tr>
<tr><td style="padding:32px;">
<h1 style="margin:0 0 16px;font-size:22px;color:#111827;">{{.Title}}</h1>
<p style="color:#374151;">Olá, {{.Name}}.</p>
{{range .Paragraphs}}<p style="color:#374151;">{{.}}</p>
{{end}}{{if .Reason}}<p style="color:#374151;"><strong>Motivo:</strong> {{.Reason}}</p>
{{end}}{{if .CTAURL}}<p style="text-align:center;margin:32px 0;"><a href="{{.CTAURL}}" style="background:{{.Accent}};color:#ffffff;padding:12px 24px;border-radius:6px;text-decoration:none;">{{.CTALabel}}</a></p>
{{end}}<p style="color:#6b7280;font-size:13px;">Protocolo: <strong>{{.Protocol}}</strong></p>
</td></tr>
<tr><td style="padding:16px 32px;background:#f9fafb;color:#9ca3af;font-size:12px;">Esta é uma mensagem automática de {{.Brand}}. Não responda este email.</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

type layoutData struct {
	Brand      string
	Accent     string
	Title      string
	Name       string
	Paragraphs []string
	Reason     string
	CTAURL     string
	CTALabel   string
	Protocol   string
}

// render builds the html and plain-text bodies for a notice
func render(brand string, cfg templateConfig, n Notice) (string, string, error) {
	data := layoutData{
		Brand:      brand,
		Accent:     cfg.Accent,
		Title:      cfg.Title,
		Name:       n.Name,
		Paragraphs: cfg.Paragraphs,
		Protocol:   n.Protocol,
	}
	if cfg.ShowReason {
		data.Reason = n.RejectionReason
	}
	if cfg.CTALabel != "" && n.EmissionURL != "" {
		data.CTAURL = n.EmissionURL
		data.CTALabel = cfg.CTALabel
	}

	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render %s template: %w", cfg.Name, err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\nOlá, %s.\n\n", cfg.Title, n.Name)
	for _, p := range cfg.Paragraphs {
		text.WriteString(p)
		text.WriteString("\n\n")
	}
	if data.Reason != "" {
		fmt.Fprintf(&text, "Motivo: %s\n\n", data.Reason)
	}
	if data.CTAURL != "" {
		fmt.Fprintf(&text, "%s: %s\n\n", data.CTALabel, data.CTAURL)
	}
	fmt.Fprintf(&text, "Protocolo: %s\n", n.Protocol)

	return buf.String(), text.String(), nil
}
