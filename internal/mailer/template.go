package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// OTPSubject is the subject line of login code emails.
const OTPSubject = "Your OTP for Login"

var otpTemplate = template.Must(template.New("otp").Parse(
	`<p>Your One-Time Password (OTP) is: <strong>{{.Code}}</strong></p>` +
		`<p>This OTP is valid for {{.Minutes}} minutes.</p>`,
))

// OTPMessage renders the login code email for to.
func OTPMessage(to, code string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		Code    string
		Minutes int
	}{
		Code:    code,
		Minutes: int(ttl.Minutes()),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render otp email: %w", err)
	}

	return Message{To: to, Subject: OTPSubject, HTML: buf.String()}, nil
}
