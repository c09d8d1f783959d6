// notifiers/email/email.go
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"netpoller/config"
	"netpoller/notifiers"
)

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier implements the Notifier interface for email notifications
type EmailNotifier struct {
	from       string
	to         []string
	smtpServer string
	smtpPort   int
	auth       smtp.Auth
	send       SendFunc
}

// NewEmailNotifier creates an email notifier from validated settings
func NewEmailNotifier(cfg config.EmailConfig) (*EmailNotifier, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("missing 'from' in email config")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("no valid 'to' addresses in email config")
	}
	if cfg.SMTPServer == "" {
		return nil, fmt.Errorf("missing 'smtp_server' in email config")
	}
	if cfg.SMTPPort <= 0 {
		return nil, fmt.Errorf("missing 'smtp_port' in email config")
	}

	n := &EmailNotifier{
		from:       cfg.From,
		to:         append([]string(nil), cfg.To...),
		smtpServer: cfg.SMTPServer,
		smtpPort:   cfg.SMTPPort,
		send:       sendMail,
	}

	// Set up authentication if credentials are provided
	if cfg.Username != "" && cfg.Password != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPServer)
	}
	return n, nil
}

// WithSender replaces the SMTP transport
func (n *EmailNotifier) WithSender(send SendFunc) *EmailNotifier {
	n.send = send
	return n
}

// Name returns the name of the notifier
func (n *EmailNotifier) Name() string {
	return "email"
}

// Notify sends one email for the notification
func (n *EmailNotifier) Notify(ctx context.Context, notif notifiers.Notification) error {
	// Check if context is cancelled
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(n.smtpServer, strconv.Itoa(n.smtpPort))
	if err := n.send(addr, n.auth, n.from, n.to, n.message(notif)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (n *EmailNotifier) message(notif notifiers.Notification) []byte {
	headers := [][2]string{
		{"From", n.from},
		{"To", strings.Join(n.to, ", ")},
		{"Subject", notif.Subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=\"utf-8\""},
	}

	var b strings.Builder
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	b.WriteString(formatBody(notif))
	return []byte(b.String())
}

// formatBody creates the plain text body of the email
func formatBody(notif notifiers.Notification) string {
	var b strings.Builder
	if notif.Kind == notifiers.KindResolved {
		b.WriteString("The following alert has been resolved:\n\n")
	} else {
		b.WriteString("The following issue was detected:\n\n")
	}
	b.WriteString(notif.Body)
	b.WriteString("\n--\n")
	b.WriteString("This is an automated message from the network monitoring system.\n")
	b.WriteString("Please do not reply to this email.\n")
	return b.String()
}

// sendMail uses smtp.SendMail when authenticating and a plain session otherwise
func sendMail(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if auth != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	// Connect to the server
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	// Set the sender and recipients
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient: %w", err)
		}
	}

	// Send the email body
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start email data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close email data: %w", err)
	}

	return client.Quit()
}

// Close performs any necessary cleanup
func (n *EmailNotifier) Close() error {
	return nil
}
