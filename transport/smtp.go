package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/AdewaleAdeniji/mailqueue"
)

const defaultSMTPTimeout = 30 * time.Second

var (
	// ErrSMTPAddrRequired is returned when no server address is configured.
	ErrSMTPAddrRequired = errors.New("mailqueue transport: smtp address is required")
	// ErrInvalidSender is returned when the From address cannot be parsed.
	ErrInvalidSender = errors.New("mailqueue transport: invalid sender address")
	// ErrInvalidRecipient is returned when the payload recipient cannot be parsed.
	ErrInvalidRecipient = errors.New("mailqueue transport: invalid recipient address")
	// ErrAuthUnsupported is returned when credentials are set but the server offers no AUTH.
	ErrAuthUnsupported = errors.New("mailqueue transport: server does not support AUTH")
)

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	// Addr is host:port of the submission server.
	Addr string
	// From is the envelope and header sender.
	From string
	// Username and Password enable PLAIN auth when Username is set.
	Username string
	Password string
	// DisableStartTLS skips STARTTLS even when the server offers it.
	DisableStartTLS bool
	// TLSConfig overrides the STARTTLS configuration. ServerName defaults to the Addr host.
	TLSConfig *tls.Config
	// Timeout bounds one delivery when ctx carries no deadline.
	Timeout time.Duration
	// LocalName is sent in EHLO. Defaults to localhost.
	LocalName string
	Clock     mailqueue.Clock
}

// SMTP delivers each message over a fresh connection.
type SMTP struct {
	cfg  SMTPConfig
	from *mail.Address
	host string
}

var _ mailqueue.Transport = (*SMTP)(nil)

// NewSMTP validates cfg and returns an SMTP transport.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Addr == "" {
		return nil, ErrSMTPAddrRequired
	}
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("mailqueue transport: smtp address %q: %w", cfg.Addr, err)
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = mailqueue.SystemClock{}
	}

	return &SMTP{cfg: cfg, from: from, host: host}, nil
}

// Send implements mailqueue.Transport.
func (s *SMTP) Send(ctx context.Context, payload mailqueue.Payload) error {
	to, err := mail.ParseAddress(payload.To)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	msg, err := buildMessage(s.from, to, payload, s.cfg.Clock.Now())
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return s.wrap(ctx, "dial "+s.cfg.Addr, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.cfg.Timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()

		return fmt.Errorf("mailqueue transport: set deadline: %w", err)
	}
	// unblock any pending read or write once ctx ends
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()

		return s.wrap(ctx, "greeting", err)
	}
	defer client.Close()

	if err := s.deliver(client, to.Address, msg); err != nil {
		return s.wrap(ctx, "deliver", err)
	}

	return nil
}

func (s *SMTP) deliver(client *smtp.Client, rcpt string, msg []byte) error {
	localName := s.cfg.LocalName
	if localName == "" {
		localName = "localhost"
	}
	if err := client.Hello(localName); err != nil {
		return err
	}
	if ok, _ := client.Extension("STARTTLS"); ok && !s.cfg.DisableStartTLS {
		if err := client.StartTLS(s.tlsConfig()); err != nil {
			return err
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return ErrAuthUnsupported
		}
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.host)); err != nil {
			return err
		}
	}
	if err := client.Mail(s.from.Address); err != nil {
		return err
	}
	if err := client.Rcpt(rcpt); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()

		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func (s *SMTP) tlsConfig() *tls.Config {
	if s.cfg.TLSConfig != nil {
		cfg := s.cfg.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = s.host
		}

		return cfg
	}

	return &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}
}

// wrap prefers the context error so cancellations are reported as such.
func (s *SMTP) wrap(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("mailqueue transport: smtp %s: %w", step, errors.Join(ctxErr, err))
	}

	return fmt.Errorf("mailqueue transport: smtp %s: %w", step, err)
}
