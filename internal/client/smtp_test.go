package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kube-rca/cpu-alert-notifier/internal/client/smtptest"
	"github.com/kube-rca/cpu-alert-notifier/internal/config"
	mail "gopkg.in/mail.v2"
)

type fakeSendCloser struct {
	sendErr  error
	closeErr error

	from   string
	to     []string
	raw    bytes.Buffer
	sends  int
	closes int
}

func (f *fakeSendCloser) Send(from string, to []string, msg io.WriterTo) error {
	f.sends++
	if f.sendErr != nil {
		return f.sendErr
	}
	f.from = from
	f.to = to
	_, err := msg.WriteTo(&f.raw)
	return err
}

func (f *fakeSendCloser) Close() error {
	f.closes++
	return f.closeErr
}

type fakeDialer struct {
	conn *fakeSendCloser
	err  error
}

func (d *fakeDialer) Dial() (mail.SendCloser, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func newTestSMTPClient(d smtpDialer) *SMTPClient {
	return &SMTPClient{
		dialer:  d,
		from:    "alerts@example.com",
		to:      "oncall@example.com",
		subject: config.DefaultSubject,
	}
}

func TestSendAlertClosesConnection(t *testing.T) {
	tests := []struct {
		name       string
		conn       *fakeSendCloser
		wantErr    bool
		wantCloses int
	}{
		{
			name:       "send-succeeds",
			conn:       &fakeSendCloser{},
			wantCloses: 1,
		},
		{
			name:       "send-fails",
			conn:       &fakeSendCloser{sendErr: errors.New("550 mailbox unavailable")},
			wantErr:    true,
			wantCloses: 1,
		},
		{
			name:       "close-fails",
			conn:       &fakeSendCloser{closeErr: errors.New("broken pipe")},
			wantErr:    true,
			wantCloses: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestSMTPClient(&fakeDialer{conn: tt.conn})
			err := c.SendAlert(context.Background(), "vm-1", "95")
			if (err != nil) != tt.wantErr {
				t.Fatalf("SendAlert() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.conn.closes != tt.wantCloses {
				t.Fatalf("Close() called %d times, want %d", tt.conn.closes, tt.wantCloses)
			}
			if tt.conn.sends != 1 {
				t.Fatalf("Send() called %d times, want 1", tt.conn.sends)
			}
		})
	}
}

func TestSendAlertDialFailure(t *testing.T) {
	c := newTestSMTPClient(&fakeDialer{err: errors.New("connection refused")})
	if err := c.SendAlert(context.Background(), "vm-1", "95"); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestSendAlertCancelledContext(t *testing.T) {
	conn := &fakeSendCloser{}
	c := newTestSMTPClient(&fakeDialer{conn: conn})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.SendAlert(ctx, "vm-1", "95"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if conn.sends != 0 {
		t.Fatalf("no send expected after cancel")
	}
}

func TestSendAlertMessage(t *testing.T) {
	conn := &fakeSendCloser{}
	c := newTestSMTPClient(&fakeDialer{conn: conn})

	if err := c.SendAlert(context.Background(), "vm-1", "95"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if conn.from != "alerts@example.com" {
		t.Fatalf("from = %q", conn.from)
	}
	if diff := cmp.Diff([]string{"oncall@example.com"}, conn.to); diff != "" {
		t.Fatalf("recipients mismatch (-want +got):\n%s", diff)
	}

	raw := conn.raw.String()
	for _, want := range []string{
		"Subject: High CPU Usage Alert",
		"Content-Type: text/plain",
		"High CPU usage detected on instance vm-1: 95%",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestSendAlertSMTPServer(t *testing.T) {
	srv, err := smtptest.NewServer(smtptest.WithStartTLS())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewSMTPClient(config.SMTPConfig{
		Host:               srv.Host,
		Port:               srv.Port,
		From:               "alerts@example.com",
		To:                 "oncall@example.com",
		Subject:            config.DefaultSubject,
		InsecureSkipVerify: true,
	})
	if err := c.SendAlert(context.Background(), "vm-1", "95"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if got := msgs[0].Header.Get("Subject"); got != config.DefaultSubject {
		t.Fatalf("subject = %q", got)
	}
	if got := msgs[0].Header.Get("To"); got != "oncall@example.com" {
		t.Fatalf("to = %q", got)
	}
	if !strings.Contains(msgs[0].Body, "vm-1") || !strings.Contains(msgs[0].Body, "95") {
		t.Fatalf("body = %q", msgs[0].Body)
	}
	if srv.Quits() != 1 {
		t.Fatalf("expected connection to be closed with QUIT, got %d", srv.Quits())
	}
}

func TestSendAlertSMTPServerRejects(t *testing.T) {
	srv, err := smtptest.NewServer(smtptest.WithStartTLS(), smtptest.WithRejectData())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewSMTPClient(config.SMTPConfig{
		Host:               srv.Host,
		Port:               srv.Port,
		From:               "alerts@example.com",
		To:                 "oncall@example.com",
		InsecureSkipVerify: true,
	})
	if err := c.SendAlert(context.Background(), "vm-1", "95"); err == nil {
		t.Fatalf("expected send failure")
	}
	if len(srv.Messages()) != 0 {
		t.Fatalf("no message should be stored")
	}
	if srv.Quits() != 1 {
		t.Fatalf("expected QUIT after failed send, got %d", srv.Quits())
	}
}

func TestSendAlertUpgradesBeforeAuth(t *testing.T) {
	srv, err := smtptest.NewServer(smtptest.WithStartTLS(), smtptest.WithAuth())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewSMTPClient(config.SMTPConfig{
		Host:               srv.Host,
		Port:               srv.Port,
		Username:           "user@example.com",
		Password:           "s3cret",
		From:               "alerts@example.com",
		To:                 "oncall@example.com",
		Subject:            config.DefaultSubject,
		InsecureSkipVerify: true,
	})
	if err := c.SendAlert(context.Background(), "vm-1", "95"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}

	upgraded := false
	sawAuth := false
	for _, cmd := range srv.Commands() {
		switch cmd.Verb {
		case "STARTTLS":
			upgraded = true
		case "AUTH", "MAIL", "RCPT", "DATA":
			if !upgraded || !cmd.TLS {
				t.Fatalf("%s sent before the TLS upgrade: %+v", cmd.Verb, srv.Commands())
			}
			if cmd.Verb == "AUTH" {
				sawAuth = true
			}
		}
	}
	if !upgraded || !sawAuth {
		t.Fatalf("expected STARTTLS then AUTH, got %+v", srv.Commands())
	}
	if len(srv.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(srv.Messages()))
	}
	if srv.Quits() != 1 {
		t.Fatalf("expected QUIT, got %d", srv.Quits())
	}
}

func TestSendAlertRequiresStartTLS(t *testing.T) {
	srv, err := smtptest.NewServer(smtptest.WithAuth())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	c := NewSMTPClient(config.SMTPConfig{
		Host:     srv.Host,
		Port:     srv.Port,
		Username: "user@example.com",
		Password: "s3cret",
		From:     "alerts@example.com",
		To:       "oncall@example.com",
	})
	if err := c.SendAlert(context.Background(), "vm-1", "95"); err == nil {
		t.Fatalf("expected failure when the relay does not offer STARTTLS")
	}

	for _, cmd := range srv.Commands() {
		switch cmd.Verb {
		case "AUTH", "MAIL", "RCPT", "DATA":
			t.Fatalf("%s must not be sent over a plaintext session: %+v", cmd.Verb, srv.Commands())
		}
	}
	if len(srv.Messages()) != 0 {
		t.Fatalf("no message should be stored")
	}
}
