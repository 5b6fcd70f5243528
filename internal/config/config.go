// 환경변수 기반 설정 로더
//
// 로컬 실행 시 작업 디렉터리의 .env 파일이 있으면 먼저 읽어들인다.
// 이미 설정된 환경변수는 .env 값으로 덮어쓰지 않는다.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultLogName = "high-cpu-alert-log"
	DefaultSubject = "High CPU Usage Alert"

	SinkCloud  = "cloud"
	SinkStdout = "stdout"

	AuthNone = "none"
	AuthOIDC = "oidc"
	AuthHMAC = "hmac"
)

type Config struct {
	Server ServerConfig
	Log    LogConfig
	GCP    GCPConfig
	SMTP   SMTPConfig
	PubSub PubSubConfig
	Auth   AuthConfig
}

type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	// 알림 로그 스트림 (Cloud Logging log name)
	AlertLogName string
	AlertSink    string
}

type GCPConfig struct {
	ProjectID string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	Subject  string
	// TLS 인증서 검증 생략 여부
	InsecureSkipVerify bool
}

type PubSubConfig struct {
	Subscription   string
	MaxOutstanding int
}

type AuthConfig struct {
	Mode           string
	Audience       string
	ServiceAccount string
	HMACSecret     string
}

// Load - .env 및 환경변수에서 설정을 읽는다.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	smtpPort, err := getenvInt("SMTP_PORT", 587)
	if err != nil {
		return Config{}, err
	}
	maxOutstanding, err := getenvInt("PUBSUB_MAX_OUTSTANDING", 10)
	if err != nil {
		return Config{}, err
	}
	timeout, err := getenvDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	skipVerify, err := getenvBool("SMTP_INSECURE_SKIP_VERIFY", false)
	if err != nil {
		return Config{}, err
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	defaultSink := SinkStdout
	if projectID != "" {
		defaultSink = SinkCloud
	}

	username := os.Getenv("SMTP_USERNAME")

	return Config{
		Server: ServerConfig{
			Port:           getenv("PORT", "8080"),
			RequestTimeout: timeout,
		},
		Log: LogConfig{
			Level:        getenv("LOG_LEVEL", "info"),
			Format:       getenv("LOG_FORMAT", "json"),
			AlertLogName: getenv("ALERT_LOG_NAME", DefaultLogName),
			AlertSink:    getenv("ALERT_LOG_SINK", defaultSink),
		},
		GCP: GCPConfig{
			ProjectID: projectID,
		},
		SMTP: SMTPConfig{
			Host:               os.Getenv("SMTP_HOST"),
			Port:               smtpPort,
			Username:           username,
			Password:           os.Getenv("SMTP_PASSWORD"),
			From:               getenv("SMTP_FROM", username),
			To:                 os.Getenv("SMTP_TO"),
			Subject:            getenv("SMTP_SUBJECT", DefaultSubject),
			InsecureSkipVerify: skipVerify,
		},
		PubSub: PubSubConfig{
			Subscription:   os.Getenv("PUBSUB_SUBSCRIPTION"),
			MaxOutstanding: maxOutstanding,
		},
		Auth: AuthConfig{
			Mode:           getenv("PUSH_AUTH_MODE", AuthNone),
			Audience:       os.Getenv("PUSH_AUDIENCE"),
			ServiceAccount: os.Getenv("PUSH_SERVICE_ACCOUNT"),
			HMACSecret:     os.Getenv("PUSH_HMAC_SECRET"),
		},
	}, nil
}

// Validate - 실행에 필요한 값이 모두 채워져 있는지 확인
func (c Config) Validate() error {
	var errs []string

	if c.SMTP.Host == "" {
		errs = append(errs, "SMTP_HOST is required")
	}
	if c.SMTP.Port <= 0 {
		errs = append(errs, fmt.Sprintf("invalid SMTP_PORT %d", c.SMTP.Port))
	}
	// 간단한 주소 형식 검사 (사용자 실수 방지 목적)
	if !strings.ContainsRune(c.SMTP.From, '@') {
		errs = append(errs, fmt.Sprintf("invalid from address: %q", c.SMTP.From))
	}
	if !strings.ContainsRune(c.SMTP.To, '@') {
		errs = append(errs, fmt.Sprintf("invalid to address: %q", c.SMTP.To))
	}
	if c.SMTP.Password != "" && c.SMTP.Username == "" {
		errs = append(errs, "SMTP_PASSWORD set without SMTP_USERNAME")
	}

	switch c.Log.AlertSink {
	case SinkStdout:
	case SinkCloud:
		if c.GCP.ProjectID == "" {
			errs = append(errs, "GOOGLE_CLOUD_PROJECT is required for the cloud log sink")
		}
	default:
		errs = append(errs, fmt.Sprintf("ALERT_LOG_SINK must be cloud or stdout (got %q)", c.Log.AlertSink))
	}
	if c.Log.AlertLogName == "" {
		errs = append(errs, "ALERT_LOG_NAME must not be empty")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be json or console (got %q)", c.Log.Format))
	}

	switch c.Auth.Mode {
	case AuthNone:
	case AuthOIDC:
		if c.Auth.Audience == "" {
			errs = append(errs, "PUSH_AUDIENCE is required for oidc push auth")
		}
	case AuthHMAC:
		if c.Auth.HMACSecret == "" {
			errs = append(errs, "PUSH_HMAC_SECRET is required for hmac push auth")
		}
	default:
		errs = append(errs, fmt.Sprintf("PUSH_AUTH_MODE must be none, oidc or hmac (got %q)", c.Auth.Mode))
	}

	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

// ValidatePull - pull 모드 전용 추가 검사
func (c Config) ValidatePull() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GCP.ProjectID == "" || c.PubSub.Subscription == "" {
		return errors.New("config validation failed:\n  GOOGLE_CLOUD_PROJECT and PUBSUB_SUBSCRIPTION are required for pull mode")
	}
	if c.PubSub.MaxOutstanding <= 0 {
		return fmt.Errorf("config validation failed:\n  invalid PUBSUB_MAX_OUTSTANDING %d", c.PubSub.MaxOutstanding)
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
