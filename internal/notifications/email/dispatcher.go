// Package email delivers reminders over SMTP submission.
//
// Each Send opens its own connection: EHLO, STARTTLS when the server offers
// it (implicit TLS on port 465), PLAIN auth when credentials are set, one
// MAIL/RCPT/DATA transaction, QUIT. The whole exchange runs under a single
// connection deadline.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"iptvpanel/internal/notifications/core"
	"iptvpanel/internal/types"
)

const implicitTLSPort = 465

// Config holds SMTP submission settings.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	DefaultSubject string
	Timeout        time.Duration
}

// Dispatcher implements core.Dispatcher for the email channel.
type Dispatcher struct {
	cfg    Config
	dialer *net.Dialer
	tls    *tls.Config
	now    func() time.Time
	logger types.Logger
}

var _ core.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher validates cfg and creates an email dispatcher.
func NewDispatcher(cfg Config, logger types.Logger) (*Dispatcher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("email dispatcher: host is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("email dispatcher: invalid from address %q: %w", cfg.From, err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = core.DefaultSendTimeout
	}
	if cfg.DefaultSubject == "" {
		cfg.DefaultSubject = "Subscription reminder"
	}
	return &Dispatcher{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.Timeout},
		tls:    &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now:    time.Now,
		logger: logger,
	}, nil
}

// Channel returns types.ChannelEmail.
func (d *Dispatcher) Channel() types.ChannelType { return types.ChannelEmail }

// Send submits one message to one mailbox. The reference is the generated
// Message-ID.
func (d *Dispatcher) Send(ctx context.Context, to core.Recipient, msg core.Message) core.Result {
	addr := strings.TrimSpace(to.Address)
	if addr == "" {
		return core.Failure(core.ErrRecipientMissing)
	}
	rcpt, err := mail.ParseAddress(addr)
	if err != nil {
		return core.Failure("invalid email address")
	}

	subject := msg.Subject
	if strings.TrimSpace(subject) == "" {
		subject = d.cfg.DefaultSubject
	}

	msgID, body, err := d.compose(rcpt, to.Name, subject, msg.Body)
	if err != nil {
		return core.FailureFromError(err)
	}

	if err := d.submit(ctx, rcpt.Address, body); err != nil {
		d.logger.Warn("smtp submission failed",
			"to", core.RedactEmail(rcpt.Address),
			"error", err.Error(),
		)
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return core.Failure("timed out")
		}
		return core.FailureFromError(err)
	}
	return core.Success(msgID)
}

func (d *Dispatcher) submit(ctx context.Context, rcpt string, body []byte) (err error) {
	hostPort := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	conn, err := d.dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return fmt.Errorf("dial %s: %w", hostPort, err)
	}

	deadline := d.now().Add(d.cfg.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if d.cfg.Port == implicitTLSPort {
		conn = tls.Client(conn, d.tls)
	}

	c, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if d.cfg.Port != implicitTLSPort {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(d.tls); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if d.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return fmt.Errorf("smtp server does not support AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	from, _ := mail.ParseAddress(d.cfg.From)
	if err := c.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(rcpt); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}
	return c.Quit()
}

// compose renders an RFC 5322 plain-text message with a quoted-printable
// body and returns its Message-ID.
func (d *Dispatcher) compose(to *mail.Address, name, subject, text string) (string, []byte, error) {
	from, _ := mail.ParseAddress(d.cfg.From)
	domain := "localhost"
	if at := strings.LastIndex(from.Address, "@"); at >= 0 {
		domain = from.Address[at+1:]
	}
	msgID := uuid.NewString() + "@" + domain

	if name = sanitizeHeader(name); name != "" && to.Name == "" {
		to = &mail.Address{Name: name, Address: to.Address}
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", from.String())
	writeHeader(&buf, "To", to.String())
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)))
	writeHeader(&buf, "Date", d.now().UTC().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", "<"+msgID+">")
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", `text/plain; charset="utf-8"`)
	writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(text)); err != nil {
		return "", nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return "", nil, fmt.Errorf("encode body: %w", err)
	}
	return msgID, buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func sanitizeHeader(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(s))
}
