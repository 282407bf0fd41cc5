package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/google/uuid"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// BrevoService sends notifications as transactional email through Brevo.
type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string

	users    UserLookup
	client   *http.Client
	endpoint string
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewEmailService returns nil when the sender is not configured, so callers
// can leave the channel out of the fanout.
func NewEmailService(apiKey, senderEmail, senderName string, users UserLookup) *BrevoService {
	if apiKey == "" || senderEmail == "" || senderName == "" {
		slog.Warn("email service not configured, missing API key, sender email or sender name")
		return nil
	}
	slog.Info("email service initialized", "sender", senderEmail)
	return &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		users:       users,
		client:      &http.Client{Timeout: 10 * time.Second},
		endpoint:    brevoURL,
	}
}

func (s *BrevoService) Notify(ctx context.Context, n models.Notification) error {
	user, err := s.users.GetUser(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}

	body := "<h1>" + html.EscapeString(n.Title) + "</h1><p>" + html.EscapeString(n.Body) + "</p>"
	if n.Link != nil {
		body += fmt.Sprintf("<p><a href='%s'>Open</a></p>", html.EscapeString(*n.Link))
	}
	return s.send(ctx, user.Email, user.FullName, n.Title, body)
}

func (s *BrevoService) send(ctx context.Context, toEmail, toName, subject, htmlContent string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	slog.Info("email sent", "to", toEmail, "subject", subject)
	return nil
}
