package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signdesk/certsync/internal/app"
	"github.com/signdesk/certsync/internal/auth"
	"github.com/signdesk/certsync/internal/config"
	"github.com/signdesk/certsync/internal/logging"
	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/policy"
	"github.com/signdesk/certsync/internal/poller"
	"github.com/signdesk/certsync/internal/status"
	"github.com/signdesk/certsync/internal/statusclient"
	"github.com/signdesk/certsync/pkg/taxid"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "certsync-admin",
	Short:        "certsync administration tool",
	Long:         "Administrative tool for certificate requests, audit logs, and access secrets of a certsync deployment",
	SilenceUsage: true,
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Manage certificate requests",
}

var requestCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a request submitted to the registration authority",
	RunE:  createRequest,
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests",
	RunE:  listRequests,
}

var requestShowCmd = &cobra.Command{
	Use:   "show <protocol>",
	Short: "Show a request and its notifications",
	Args:  cobra.ExactArgs(1),
	RunE:  showRequest,
}

var requestSyncCmd = &cobra.Command{
	Use:   "sync <protocol>",
	Short: "Pull the current status from the registration authority",
	Args:  cobra.ExactArgs(1),
	RunE:  syncRequest,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect audit logs",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit logs",
	RunE:  listAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit logs",
	RunE:  pruneAudit,
}

var watchCmd = &cobra.Command{
	Use:   "watch <protocol>...",
	Short: "Poll a certsync server and print status changes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  watch,
}

var totpCmd = &cobra.Command{
	Use:   "totp",
	Short: "Admin second factor",
}

var totpGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a TOTP secret for admin.totp_secret",
	RunE:  generateTOTP,
}

var webhookTokenCmd = &cobra.Command{
	Use:   "webhook-token",
	Short: "Webhook shared token",
}

var webhookTokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a webhook token and the hash for webhook.token_hash",
	RunE:  generateWebhookToken,
}

var (
	protocol      string
	commonName    string
	taxID         string
	email         string
	phone         string
	birthDate     string
	applicantType string

	statusFilter string
	actionFilter string
	limit        int
	olderThan    string

	serverURL     string
	watchInterval time.Duration

	totpAccount string
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/certsync/config.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")

	// Request create flags
	requestCreateCmd.Flags().StringVarP(&protocol, "protocol", "p", "", "AR protocol (required)")
	requestCreateCmd.Flags().StringVarP(&commonName, "name", "n", "", "Applicant name (required)")
	requestCreateCmd.Flags().StringVarP(&taxID, "tax-id", "t", "", "CPF or CNPJ (required)")
	requestCreateCmd.Flags().StringVarP(&email, "email", "e", "", "Applicant email (required)")
	requestCreateCmd.Flags().StringVar(&phone, "phone", "", "Applicant phone")
	requestCreateCmd.Flags().StringVar(&birthDate, "birth-date", "", "Applicant birth date (YYYY-MM-DD)")
	requestCreateCmd.Flags().StringVar(&applicantType, "type", "", "individual or organization (derived from tax id when empty)")
	requestCreateCmd.MarkFlagRequired("protocol")
	requestCreateCmd.MarkFlagRequired("name")
	requestCreateCmd.MarkFlagRequired("tax-id")
	requestCreateCmd.MarkFlagRequired("email")

	requestListCmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Only requests in this status")
	requestListCmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum rows")

	auditListCmd.Flags().StringVarP(&protocol, "protocol", "p", "", "Only entries for this protocol")
	auditListCmd.Flags().StringVarP(&actionFilter, "action", "a", "", "Only entries with this action")
	auditListCmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum rows")

	auditPruneCmd.Flags().StringVar(&olderThan, "older-than", "90d", "Delete entries older than this (e.g. 30d, 720h)")

	watchCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "certsync server URL")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "Polling interval")

	totpGenerateCmd.Flags().StringVar(&totpAccount, "account", "admin", "Account label shown in the authenticator app")

	// Add commands
	requestCmd.AddCommand(requestCreateCmd, requestListCmd, requestShowCmd, requestSyncCmd)
	auditCmd.AddCommand(auditListCmd, auditPruneCmd)
	totpCmd.AddCommand(totpGenerateCmd)
	webhookTokenCmd.AddCommand(webhookTokenGenerateCmd)
	rootCmd.AddCommand(requestCmd, auditCmd, watchCmd, totpCmd, webhookTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initApp(ctx context.Context) (*app.App, error) {
	// Load configuration
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Discard()
	if verbose {
		logger = logging.New(config.LoggingConfig{Level: "debug", Format: "text"}, os.Stderr)
	}

	return app.New(ctx, cfg, logger)
}

func createRequest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req := &models.CertificateRequest{
		Protocol:      protocol,
		CommonName:    commonName,
		TaxID:         taxID,
		Email:         email,
		Phone:         phone,
		BirthDate:     birthDate,
		ApplicantType: applicantType,
		Status:        status.Created,
	}
	if err := policy.NewValidator().ValidateNewRequest(req); err != nil {
		return err
	}
	if err := a.Backend.Requests.Create(ctx, req); err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if err := a.Backend.Audits.Create(ctx, &models.AuditLog{
		Action:   models.ActionRequestCreate,
		Protocol: req.Protocol,
		Source:   "cli",
		Status:   string(req.Status),
		Success:  true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}

	fmt.Printf("\nRequest registered successfully!\n")
	fmt.Printf("ID: %d\n", req.ID)
	fmt.Printf("Protocol: %s\n", req.Protocol)
	fmt.Printf("Applicant: %s (%s %s)\n", req.CommonName, req.ApplicantType, taxid.Mask(req.TaxID))
	fmt.Printf("Email: %s\n", req.Email)
	fmt.Printf("Status: %s\n", req.Status)

	return nil
}

func listRequests(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reqs, err := a.Backend.Requests.List(ctx, repositoryFilter())
	if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}

	if len(reqs) == 0 {
		fmt.Println("No requests found")
		return nil
	}

	fmt.Printf("\nTotal requests: %d\n\n", len(reqs))
	fmt.Printf("%-20s %-28s %-24s %-8s %s\n", "Protocol", "Applicant", "Status", "Issued", "Updated")
	fmt.Println("--------------------------------------------------------------------------------------------------")

	for _, r := range reqs {
		issued := "No"
		if r.CertificateIssued {
			issued = "Yes"
		}
		fmt.Printf("%-20s %-28s %-24s %-8s %s\n",
			r.Protocol,
			truncate(r.CommonName, 28),
			r.Status,
			issued,
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

func showRequest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.Backend.Requests.GetByProtocol(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load request %s: %w", args[0], err)
	}

	fmt.Printf("\nProtocol:      %s\n", r.Protocol)
	fmt.Printf("Applicant:     %s\n", r.CommonName)
	fmt.Printf("Tax ID:        %s\n", taxid.Mask(r.TaxID))
	fmt.Printf("Email:         %s\n", r.Email)
	fmt.Printf("Type:          %s\n", r.ApplicantType)
	fmt.Printf("Status:        %s\n", r.Status)
	fmt.Printf("Created:       %s\n", r.CreatedAt.Format(time.RFC3339))
	printTime("Approved:", r.ApprovedAt)
	if r.EmissionURL != "" {
		fmt.Printf("Emission URL:  %s\n", r.EmissionURL)
	}
	printTime("Issued:", r.IssuedAt)
	if r.CertificateSerial != "" {
		fmt.Printf("Serial:        %s\n", r.CertificateSerial)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil {
		fmt.Printf("Valid:         %s - %s\n", r.ValidFrom.Format("2006-01-02"), r.ValidUntil.Format("2006-01-02"))
	}
	if r.RejectionReason != "" {
		fmt.Printf("Reason:        %s\n", r.RejectionReason)
	}
	printTime("Revoked:", r.RevokedAt)

	notifications, err := a.Backend.Notifications.ListByProtocol(ctx, r.Protocol)
	if err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}
	fmt.Printf("\nNotifications: %d\n", len(notifications))
	for _, n := range notifications {
		result := "sent"
		if !n.Success {
			result = "failed: " + n.ErrorMsg
		}
		fmt.Printf("  %s  %-20s %-8s %s\n", n.SentAt.Format("2006-01-02 15:04:05"), n.Template, n.Provider, result)
	}

	return nil
}

func syncRequest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Engine.Sync(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Protocol: %s\n", args[0])
	fmt.Printf("Outcome:  %s\n", res.Outcome)
	fmt.Printf("Status:   %s -> %s\n", res.Previous, res.Current)
	if res.Notification != nil {
		fmt.Printf("Email:    %s (success: %t)\n", res.Notification.Template, res.Notification.Success)
	}
	if res.PersistErr != nil {
		return res.PersistErr
	}
	return nil
}

func listAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logs, err := a.Backend.Audits.List(ctx, protocol, actionFilter, limit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}
	if len(logs) == 0 {
		fmt.Println("No audit logs found")
		return nil
	}

	fmt.Printf("%-20s %-20s %-20s %-8s %-22s %s\n", "Time", "Action", "Protocol", "Source", "Status", "Result")
	for _, l := range logs {
		result := "ok"
		if !l.Success {
			result = "failed"
			if l.ErrorMsg != "" {
				result += ": " + l.ErrorMsg
			}
		}
		fmt.Printf("%-20s %-20s %-20s %-8s %-22s %s\n",
			l.Timestamp.Format("2006-01-02 15:04:05"), l.Action, l.Protocol, l.Source, l.Status, result)
	}
	return nil
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	age, err := config.ParseDuration(olderThan)
	if err != nil {
		return fmt.Errorf("invalid --older-than: %w", err)
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.Backend.Audits.DeleteOld(ctx, time.Now().Add(-age))
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d audit log entries\n", count)
	return nil
}

func watch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := statusclient.New(serverURL, 10*time.Second)
	logger := logging.Discard()
	if verbose {
		logger = logging.New(config.LoggingConfig{Level: "debug", Format: "text"}, os.Stderr)
	}

	p := poller.New(client, watchInterval,
		poller.WithFetchTimeout(10*time.Second),
		poller.WithLogger(logger),
		poller.OnChange(func(changes []poller.Change) {
			for _, ch := range changes {
				fmt.Printf("%s  %s: %s -> %s\n", time.Now().Format("15:04:05"), ch.Protocol, displayStatus(ch.From), ch.To)
			}
		}),
	)
	for _, protocol := range args {
		p.Track(protocol, "")
	}

	if err := p.Start(); err != nil {
		return err
	}
	defer p.Stop()

	fmt.Printf("Watching %d request(s) on %s every %s (Ctrl+C to stop)\n", len(args), serverURL, watchInterval)
	<-ctx.Done()
	return nil
}

func generateTOTP(cmd *cobra.Command, args []string) error {
	secret, err := auth.GenerateTOTPSecret(totpAccount)
	if err != nil {
		return err
	}

	fmt.Printf("TOTP Secret: %s\n", secret)
	fmt.Printf("TOTP QR URL: %s\n", auth.GenerateQRCodeURL(secret, totpAccount, ""))
	fmt.Printf("\nSet admin.totp_secret (or CERTSYNC_ADMIN_TOTP_SECRET) to the secret and\n")
	fmt.Printf("scan the QR URL with a TOTP app (Google Authenticator, Authy, etc.)\n")
	return nil
}

func generateWebhookToken(cmd *cobra.Command, args []string) error {
	token, err := auth.GenerateToken()
	if err != nil {
		return err
	}

	fmt.Printf("Webhook token: %s\n", token)
	fmt.Printf("Token hash:    %s\n", auth.HashToken(token))
	fmt.Printf("\nSet webhook.token_hash to the hash and configure the AR webhook URL as\n")
	fmt.Printf("https://<host>/webhooks/bry?token=<token>\n")
	return nil
}
