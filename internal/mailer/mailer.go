// Package mailer delivers transactional email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var errInvalidMessage = errors.New("invalid mail message")

// Message is a single HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Validate rejects messages that would produce a malformed or injected header.
func (m Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: empty recipient", errInvalidMessage)
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("%w: header contains a line break", errInvalidMessage)
	}
	return nil
}

// Mailer sends email through a specific transport.
type Mailer interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
