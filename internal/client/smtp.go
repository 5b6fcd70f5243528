// SMTP 릴레이로 알림 메일을 보내는 클라이언트 정의
//
// 전송 흐름:
//  1. 고정 제목/수신자/본문으로 text/plain 메시지 구성
//  2. SMTP 서버 연결 후 STARTTLS 로 업그레이드 (465 포트는 처음부터 TLS)
//     서버가 STARTTLS 를 지원하지 않으면 인증/전송 없이 실패
//  3. 계정이 설정되어 있으면 TLS 위에서 인증 후 1건 전송
//  4. 성공/실패와 관계없이 연결 종료 (QUIT)
//
// 재시도는 하지 않는다. 실패는 호출자에게 그대로 반환된다.

package client

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/kube-rca/cpu-alert-notifier/internal/config"
	"github.com/kube-rca/cpu-alert-notifier/internal/template"
	mail "gopkg.in/mail.v2"
)

// smtpDialer - *mail.Dialer 중 사용하는 메서드만 추출 (테스트용)
type smtpDialer interface {
	Dial() (mail.SendCloser, error)
}

// SMTPClient 구조체 정의
type SMTPClient struct {
	dialer  smtpDialer
	from    string
	to      string
	subject string
}

// SMTPClient 객체 생성
func NewSMTPClient(cfg config.SMTPConfig) *SMTPClient {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	// 평문 세션에서는 계정/본문을 보내지 않는다
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	return &SMTPClient{
		dialer:  d,
		from:    cfg.From,
		to:      cfg.To,
		subject: cfg.Subject,
	}
}

// SendAlert - 인스턴스 ID 와 CPU 값으로 알림 메일 1건 전송
func (c *SMTPClient) SendAlert(ctx context.Context, instanceID, value string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := c.compose(instanceID, value)

	conn, err := c.dialer.Dial()
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	// 연결 이후에는 어떤 경로로 끝나든 반드시 닫는다
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close smtp connection: %w", cerr)
		}
	}()

	if err := mail.Send(conn, msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

func (c *SMTPClient) compose(instanceID, value string) *mail.Message {
	body := template.Render(template.EmailBody, &template.AlertData{
		ResourceID: instanceID,
		Value:      value,
	})

	m := mail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", c.to)
	m.SetHeader("Subject", c.subject)
	m.SetBody("text/plain", body)
	return m
}
