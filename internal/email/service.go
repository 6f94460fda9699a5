package email

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"html/template"
	"math/big"
	"net/smtp"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack-api/internal/logging"
)

type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	frontendURL  string
}

func NewService(smtpHost, smtpPort, smtpUser, smtpPassword, frontendURL string) *Service {
	return &Service{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		fromEmail:    smtpUser,
		frontendURL:  frontendURL,
	}
}

// SendActivationEmail mails a freshly generated activation code to the user
// and returns the code on success so the caller can persist it. The code only
// exists once the email went out; a failed send returns no code.
func (s *Service) SendActivationEmail(ctx context.Context, toEmail string, userID uuid.UUID) (string, error) {
	logger := logging.GetLoggerFromContext(ctx)

	code, err := generateActivationCode()
	if err != nil {
		return "", fmt.Errorf("generate activation code: %w", err)
	}

	subject := "Activate your account"
	body, err := renderActivationEmail(code)
	if err != nil {
		logger.Error("failed to render activation email template", "error", err)
		return "", fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(toEmail, subject, body); err != nil {
		logger.Error("failed to send activation email", "email", toEmail, "error", err)
		return "", fmt.Errorf("send email: %w", err)
	}

	logger.Info("activation email sent", "email", toEmail, "user_id", userID)
	return code, nil
}

// SendPasswordResetEmail sends a password reset link to the user
// This method is designed to be called in a goroutine
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	logger := logging.GetLoggerFromContext(ctx)

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)

	subject := "Reset your password"
	body, err := renderPasswordResetEmail(resetLink)
	if err != nil {
		logger.Error("failed to render password reset email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(toEmail, subject, body); err != nil {
		logger.Error("failed to send password reset email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("password reset email sent", "email", toEmail)
	return nil
}

func (s *Service) sendEmail(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return smtp.SendMail(addr, auth, s.fromEmail, []string{to}, msg)
}

// generateActivationCode produces a 6-digit numeric code
func generateActivationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var activationTmpl = template.Must(template.New("activation").Parse(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="color: #4F46E5;">Welcome!</h1>
    <p>Thank you for signing up. Enter this code in the app to activate your account:</p>
    <p style="font-size: 32px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
    <p>If you didn't create an account, you can safely ignore this email.</p>
    <p style="font-size: 12px; color: #666;">This code will expire in 24 hours.</p>
</body>
</html>
`))

var passwordResetTmpl = template.Must(template.New("passwordReset").Parse(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="color: #4F46E5;">Password Reset Request</h1>
    <p>You requested to reset your password. Click the link below to create a new password:</p>
    <p><a href="{{.ResetLink}}" style="color: #4F46E5;">Reset Password</a></p>
    <p style="word-break: break-all; color: #4F46E5;">{{.ResetLink}}</p>
    <p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
    <p style="font-size: 12px; color: #666;">This link will expire in 1 hour.</p>
</body>
</html>
`))

func renderActivationEmail(code string) (string, error) {
	var buf bytes.Buffer
	if err := activationTmpl.Execute(&buf, struct{ Code string }{Code: code}); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

func renderPasswordResetEmail(resetLink string) (string, error) {
	var buf bytes.Buffer
	if err := passwordResetTmpl.Execute(&buf, struct{ ResetLink string }{ResetLink: resetLink}); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
