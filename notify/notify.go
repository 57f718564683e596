package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"turbinelens/analysis"
	"turbinelens/database"
)

var (
	ErrMissingRecipient = errors.New("please enter a recipient email address")
	ErrInvalidRecipient = errors.New("invalid recipient email address")
	ErrRateLimited      = errors.New("notification rate limit exceeded")
)

// Message is what a Sender delivers.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a composed message.
type Sender interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of a mail transport.
type LogSender struct{}

func (LogSender) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("maintenance alert delivered")
	return nil
}

// Store persists notification attempts.
type Store interface {
	LogNotification(n database.NotificationLog) error
}

// Recorder counts notification outcomes.
type Recorder interface {
	NotificationSent(result string)
}

// Request asks for one alert to be sent to a maintenance worker.
type Request struct {
	Recipient string         `json:"recipient"`
	Message   string         `json:"message"` // optional, composed from the alert when empty
	Alert     analysis.Alert `json:"alert"`
}

// Receipt confirms a delivered notification.
type Receipt struct {
	NotificationID string    `json:"notification_id"`
	Recipient      string    `json:"recipient"`
	Subject        string    `json:"subject"`
	Message        string    `json:"message"`
	SentAt         time.Time `json:"sent_at"`
}

// Priority is the label shown for a severity.
func Priority(s analysis.Severity) string {
	if s == analysis.SeverityHigh {
		return "HIGH"
	}
	return "MEDIUM"
}

// Subject is the subject line for an alert.
func Subject(a analysis.Alert) string {
	return fmt.Sprintf("Maintenance Alert: %s (%s priority)", a.TurbineID, Priority(a.Severity))
}

// ComposeMessage renders the default maintenance alert text.
func ComposeMessage(a analysis.Alert) string {
	var b strings.Builder
	b.WriteString("MAINTENANCE ALERT\n\n")
	fmt.Fprintf(&b, "Turbine ID: %s\n", a.TurbineID)
	fmt.Fprintf(&b, "Priority: %s\n", Priority(a.Severity))
	fmt.Fprintf(&b, "Detection Time: %s\n", a.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", a.Probability*100)
	fmt.Fprintf(&b, "Model: %s\n\n", a.Model)
	b.WriteString("Description:\n")
	b.WriteString("Predictive maintenance models have detected anomalies indicating this turbine requires immediate attention. ")
	b.WriteString("Please schedule maintenance inspection as soon as possible.\n\n")
	b.WriteString("This is an automated alert from the Wind Turbine Monitoring System.")
	return b.String()
}

// Service validates, rate limits, delivers and records alert notifications.
type Service struct {
	sender   Sender
	store    Store
	recorder Recorder
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewService creates a service allowing perMinute sends with the given burst.
// perMinute <= 0 disables the limit. store and recorder may be nil.
func NewService(sender Sender, store Store, recorder Recorder, perMinute, burst int) *Service {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	if sender == nil {
		sender = LogSender{}
	}
	return &Service{
		sender:   sender,
		store:    store,
		recorder: recorder,
		limiter:  rate.NewLimiter(limit, burst),
		now:      time.Now,
	}
}

// Send delivers one notification.
func (s *Service) Send(ctx context.Context, req Request) (*Receipt, error) {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return nil, ErrMissingRecipient
	}
	addr, err := mail.ParseAddress(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, recipient)
	}
	if strings.TrimSpace(req.Alert.TurbineID) == "" {
		return nil, errors.New("alert has no turbine id")
	}

	if !s.limiter.Allow() {
		s.record("rate_limited")
		return nil, ErrRateLimited
	}

	body := req.Message
	if strings.TrimSpace(body) == "" {
		body = ComposeMessage(req.Alert)
	}
	msg := Message{To: addr.Address, Subject: Subject(req.Alert), Body: body}

	entry := database.NotificationLog{
		NotificationID: uuid.New().String(),
		TurbineID:      req.Alert.TurbineID,
		Recipient:      msg.To,
		Subject:        msg.Subject,
		Message:        msg.Body,
		Status:         "sent",
		SentAt:         s.now().UTC(),
	}

	sendErr := s.sender.Deliver(ctx, msg)
	if sendErr != nil {
		entry.Status = "failed"
		entry.ErrorMessage = sendErr.Error()
	}
	if s.store != nil {
		if err := s.store.LogNotification(entry); err != nil {
			log.Warn().Err(err).Str("turbine", entry.TurbineID).Msg("failed to record notification")
		}
	}
	if sendErr != nil {
		s.record("failed")
		return nil, fmt.Errorf("failed to deliver alert for %s: %w", entry.TurbineID, sendErr)
	}

	s.record("sent")
	log.Info().Str("turbine", entry.TurbineID).Str("to", entry.Recipient).Msg("maintenance alert sent")
	return &Receipt{
		NotificationID: entry.NotificationID,
		Recipient:      entry.Recipient,
		Subject:        entry.Subject,
		Message:        entry.Message,
		SentAt:         entry.SentAt,
	}, nil
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.NotificationSent(result)
	}
}
