package services

import (
	"context"
	"fmt"
	"time"

	"rankshop-api/internal/config"
	"rankshop-api/internal/models"
	"rankshop-api/pkg/logging"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// AlertMailer sends operator alerts for purchases that need a human. Disabled
// when no Brevo key or operator address is configured; alert failures are
// logged and never propagate into the fulfillment path.
type AlertMailer struct {
	client        *brevo.APIClient
	fromEmail     string
	fromName      string
	operatorEmail string
}

// NewAlertMailer creates a new alert mailer
func NewAlertMailer() *AlertMailer {
	cfg := config.AppConfig
	if cfg.BrevoAPIKey == "" || cfg.OperatorEmail == "" {
		logging.Warnf("Brevo not configured, operator alerts disabled")
		return &AlertMailer{}
	}

	brevoCfg := brevo.NewConfiguration()
	brevoCfg.AddDefaultHeader("api-key", cfg.BrevoAPIKey)

	return &AlertMailer{
		client:        brevo.NewAPIClient(brevoCfg),
		fromEmail:     cfg.BrevoFromEmail,
		fromName:      cfg.BrevoFromName,
		operatorEmail: cfg.OperatorEmail,
	}
}

// SendMissingMetadataAlert notifies operators about a paid session that
// carries no fulfillment metadata
func (m *AlertMailer) SendMissingMetadataAlert(sessionID string, metadata map[string]string) {
	subject := "Paid checkout session missing fulfillment metadata"
	body := fmt.Sprintf(`<h2>Unfulfillable payment</h2>
<p>Checkout session <strong>%s</strong> is paid but has no player or rank metadata.</p>
<p>Metadata received: %v</p>
<p>The payment is captured; this purchase needs manual reconciliation.</p>`, sessionID, metadata)

	m.send(subject, body)
}

// SendStalePendingAlert notifies operators about a pending purchase that has
// sat unreconciled past the stale threshold
func (m *AlertMailer) SendStalePendingAlert(pending models.PendingPurchase) {
	subject := fmt.Sprintf("Stale pending purchase: %s / %s", pending.PlayerName, pending.RankID)
	body := fmt.Sprintf(`<h2>Stale pending purchase</h2>
<p>Session <strong>%s</strong> for player <strong>%s</strong> (rank %s) has been pending since %s.</p>
<p>No webhook completed reconciliation for it. Check the gateway dashboard and the webhook event log.</p>`,
		pending.SessionID, pending.PlayerName, pending.RankID, pending.CreatedAt.Format(time.RFC3339))

	m.send(subject, body)
}

func (m *AlertMailer) send(subject, htmlBody string) {
	if m == nil || m.client == nil {
		return
	}

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Email: m.fromEmail,
			Name:  m.fromName,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: m.operatorEmail},
		},
		Subject:     subject,
		HtmlContent: htmlBody,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, _, err := m.client.TransactionalEmailsApi.SendTransacEmail(ctx, email); err != nil {
		logging.Errorf("Failed to send operator alert %q: %v", subject, err)
		return
	}

	logging.Infof("Operator alert sent: %s", subject)
}
