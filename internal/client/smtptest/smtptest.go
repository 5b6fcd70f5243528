// Package smtptest provides an in-process SMTP server for tests.
//
// 지원 명령: EHLO, HELO, STARTTLS, AUTH, MAIL, RCPT, RSET, NOOP, DATA, QUIT
// STARTTLS 와 AUTH 는 옵션을 준 경우에만 EHLO 응답에 광고한다.
package smtptest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Message struct {
	Header mail.Header
	Body   string
}

// Command - 서버가 받은 명령 1건과 그 시점의 TLS 여부
type Command struct {
	Verb string
	TLS  bool
}

type Server struct {
	Host string
	Port int

	rejectData bool
	startTLS   bool
	auth       bool
	tlsConfig  *tls.Config

	l        net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	messages []*Message
	commands []Command
	quits    int
	errors   []error
}

type Option func(*Server)

// WithRejectData - DATA 명령에 554 로 응답 (전송 실패 경로 테스트용)
func WithRejectData() Option {
	return func(s *Server) { s.rejectData = true }
}

// WithStartTLS - STARTTLS 광고 및 자체 서명 인증서로 업그레이드
func WithStartTLS() Option {
	return func(s *Server) { s.startTLS = true }
}

// WithAuth - AUTH PLAIN LOGIN 광고 (자격 증명은 검사하지 않음)
func WithAuth() Option {
	return func(s *Server) { s.auth = true }
}

func NewServer(opts ...Option) (*Server, error) {
	s := &Server{conns: make(map[net.Conn]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	if s.startTLS {
		cert, err := selfSignedCert()
		if err != nil {
			return nil, err
		}
		s.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		l.Close()
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		l.Close()
		return nil, err
	}
	s.Host = host
	s.Port = port
	s.l = l

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	return s, nil
}

func (s *Server) Messages() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Commands - 받은 명령 순서대로 (AUTH 응답 줄은 제외)
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Quits - 받은 QUIT 명령 수 (= 정상적으로 닫힌 세션 수)
func (s *Server) Quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits
}

func (s *Server) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errors))
	copy(out, s.errors)
	return out
}

// Close - 리스너와 열린 세션을 모두 닫는다
func (s *Server) Close() error {
	err := s.l.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) run() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			if err := s.handleConn(conn); err != nil && err != io.EOF {
				s.mu.Lock()
				s.errors = append(s.errors, err)
				s.mu.Unlock()
			}
		}()
	}
}

const (
	replyGreeting = "220 smtptest ready"
	replyOK       = "250 Ok"
	replyTLSReady = "220 Ready to start TLS"
	replyAuthOK   = "235 Authentication successful"
	replyAuthUser = "334 VXNlcm5hbWU6"
	replyAuthPass = "334 UGFzc3dvcmQ6"
	replyData     = "354 Go ahead"
	replyRejected = "554 Transaction failed"
	replyUnknown  = "502 Command not implemented"
	replyGoodbye  = "221 Goodbye"
)

func (s *Server) record(verb string, tlsActive bool) {
	s.mu.Lock()
	s.commands = append(s.commands, Command{Verb: verb, TLS: tlsActive})
	s.mu.Unlock()
}

// handleConn - 단순화한 SMTP 대화를 처리하면서 메시지를 저장
func (s *Server) handleConn(conn net.Conn) error {
	tc := textproto.NewConn(conn)
	tlsActive := false
	if err := tc.PrintfLine(replyGreeting); err != nil {
		return err
	}

	for {
		line, err := tc.ReadLine()
		if err != nil {
			return err
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		if len(verb) < 4 {
			tc.PrintfLine(replyUnknown)
			return fmt.Errorf("unexpected data %q", line)
		}
		s.record(verb, tlsActive)

		switch verb {
		case "EHLO":
			if err := s.writeExtensions(tc, tlsActive); err != nil {
				return err
			}
		case "HELO", "MAIL", "RCPT", "RSET", "NOOP":
			if err := tc.PrintfLine(replyOK); err != nil {
				return err
			}
		case "STARTTLS":
			if !s.startTLS || tlsActive {
				if err := tc.PrintfLine(replyUnknown); err != nil {
					return err
				}
				continue
			}
			if err := tc.PrintfLine(replyTLSReady); err != nil {
				return err
			}
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return err
			}
			tc = textproto.NewConn(tlsConn)
			tlsActive = true
		case "AUTH":
			if err := s.handleAuth(tc, line); err != nil {
				return err
			}
		case "DATA":
			if s.rejectData {
				if err := tc.PrintfLine(replyRejected); err != nil {
					return err
				}
				continue
			}
			if err := s.readData(tc); err != nil {
				return err
			}
		case "QUIT":
			s.mu.Lock()
			s.quits++
			s.mu.Unlock()
			return tc.PrintfLine(replyGoodbye)
		default:
			if err := tc.PrintfLine(replyUnknown); err != nil {
				return err
			}
		}
	}
}

func (s *Server) writeExtensions(tc *textproto.Conn, tlsActive bool) error {
	lines := []string{"smtptest"}
	if s.startTLS && !tlsActive {
		lines = append(lines, "STARTTLS")
	}
	if s.auth {
		lines = append(lines, "AUTH PLAIN LOGIN")
	}
	for i, l := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		if err := tc.PrintfLine("250%s%s", sep, l); err != nil {
			return err
		}
	}
	return nil
}

// handleAuth - PLAIN (초기 응답 포함) 과 LOGIN 을 받아들인다
func (s *Server) handleAuth(tc *textproto.Conn, line string) error {
	if !s.auth {
		return tc.PrintfLine(replyUnknown)
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return tc.PrintfLine(replyUnknown)
	}

	switch strings.ToUpper(fields[1]) {
	case "PLAIN":
		if len(fields) < 3 {
			if err := tc.PrintfLine("334 "); err != nil {
				return err
			}
			if _, err := tc.ReadLine(); err != nil {
				return err
			}
		}
	case "LOGIN":
		for _, prompt := range []string{replyAuthUser, replyAuthPass} {
			if err := tc.PrintfLine("%s", prompt); err != nil {
				return err
			}
			if _, err := tc.ReadLine(); err != nil {
				return err
			}
		}
	default:
		return tc.PrintfLine(replyUnknown)
	}
	return tc.PrintfLine(replyAuthOK)
}

func (s *Server) readData(tc *textproto.Conn) error {
	if err := tc.PrintfLine(replyData); err != nil {
		return err
	}
	msg, err := mail.ReadMessage(tc.DotReader())
	if err != nil {
		return err
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = append(s.messages, &Message{
		Header: msg.Header,
		Body:   string(body),
	})
	s.mu.Unlock()

	return tc.PrintfLine(replyOK)
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "smtptest"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
