package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ath-alerts/internal/subscribers"
)

// Message carries one per-recipient notification.
type Message struct {
	Recipient       subscribers.Recipient
	AssetName       string
	AssetSymbol     string
	NewATH          decimal.Decimal
	PreviousATH     decimal.Decimal
	PercentIncrease decimal.Decimal
	DetectedAt      time.Time
}

// Sender delivers a single notification message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// MailSender delivers messages through an HTTP mail API.
type MailSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewMailSender constructs a mail API sender.
func NewMailSender(baseURL, apiKey, fromAddress string, timeout time.Duration, logger zerolog.Logger) *MailSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &MailSender{
		apiKey:  apiKey,
		from:    fromAddress,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "mail_sender").Logger(),
	}
}

// Send posts one message to the mail API.
func (m *MailSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"from":    m.from,
		"to":      msg.Recipient.Email,
		"subject": renderSubject(msg),
		"text":    renderBody(msg),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	url := m.baseURL + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail api status %d for %s", resp.StatusCode, msg.Recipient.Email)
	}

	m.logger.Debug().Str("to", msg.Recipient.Email).Str("symbol", msg.AssetSymbol).Msg("notification mail accepted")
	return nil
}

func renderSubject(msg Message) string {
	return fmt.Sprintf("%s (%s) hit a new all-time high", msg.AssetName, msg.AssetSymbol)
}

func renderBody(msg Message) string {
	builder := strings.Builder{}
	name := msg.Recipient.Name
	if name == "" {
		name = "there"
	}
	builder.WriteString(fmt.Sprintf("Hi %s,\n\n", name))
	builder.WriteString(fmt.Sprintf("%s (%s) just reached a new all-time high.\n\n", msg.AssetName, msg.AssetSymbol))
	builder.WriteString(fmt.Sprintf("New ATH: %s\n", msg.NewATH.String()))
	builder.WriteString(fmt.Sprintf("Previous ATH: %s\n", msg.PreviousATH.String()))
	builder.WriteString(fmt.Sprintf("Change: +%s%%\n", msg.PercentIncrease.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Detected: %s UTC\n", msg.DetectedAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Sender = (*MailSender)(nil)
