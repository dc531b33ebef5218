package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samiralam04/Note-app/internal/domain"
	pkgkafka "github.com/samiralam04/Note-app/pkg/kafka"
	"github.com/samiralam04/Note-app/pkg/logger"
)

// Kafka topics for auth domain events.
var (
	TopicUserRegistered = pkgkafka.Topic("user", "registered")
	TopicOTPRequested   = pkgkafka.Topic("auth", "otp_requested")
	TopicLoggedIn       = pkgkafka.Topic("auth", "logged_in")
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// SourceNoteApp identifies events originating from this server.
const SourceNoteApp = "note-app"

// Login methods carried by logged_in events.
const (
	MethodOTP    = "otp"
	MethodGoogle = "google"
)

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Method string `json:"method"`
}

// OTPRequestedData is the payload for an auth.otp_requested event. The code
// itself is never published.
type OTPRequestedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// LoggedInData is the payload for an auth.logged_in event.
type LoggedInData struct {
	UserID string `json:"user_id"`
	Method string `json:"method"`
}

// Publisher is the subset of the Kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User, method string) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, UserRegisteredData{
		ID:     user.ID,
		Email:  user.Email,
		Method: method,
	})
}

// PublishOTPRequested publishes an auth.otp_requested event.
func (p *Producer) PublishOTPRequested(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicOTPRequested, user.ID, OTPRequestedData{
		UserID: user.ID,
		Email:  user.Email,
	})
}

// PublishLoggedIn publishes an auth.logged_in event.
func (p *Producer) PublishLoggedIn(ctx context.Context, user *domain.User, method string) error {
	return p.publish(ctx, TopicLoggedIn, user.ID, LoggedInData{
		UserID: user.ID,
		Method: method,
	})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceNoteApp, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}
