// 알림 로그를 외부 로그 스트림에 남기는 클라이언트 정의
//
// 구현체:
//   - CloudLoggingSink: Cloud Logging 의 이름 있는 로그 스트림 (ALERT_LOG_NAME)
//   - ZapSink: 프로세스 zap 로거 (로컬 실행, GCP 프로젝트가 없을 때)
//
// 로그 한 줄 기록 실패는 호출자에게 그대로 반환된다.

package client

import (
	"context"
	"fmt"

	"cloud.google.com/go/logging"
	"go.uber.org/zap"
)

// Severity - 알림 로그 심각도
type Severity int

const (
	SeverityDefault Severity = iota
	SeverityCritical
)

func (s Severity) String() string {
	if s == SeverityCritical {
		return "CRITICAL"
	}
	return "DEFAULT"
}

// LogSink - 알림 로그 스트림
type LogSink interface {
	Log(ctx context.Context, severity Severity, text string) error
}

// cloudLogger - logging.Logger 중 사용하는 메서드만 추출 (테스트용)
type cloudLogger interface {
	LogSync(ctx context.Context, e logging.Entry) error
}

// CloudLoggingSink - Cloud Logging 로그 스트림
type CloudLoggingSink struct {
	client *logging.Client
	logger cloudLogger
}

// NewCloudLoggingSink - 프로세스 시작 시 한 번 생성해서 재사용
func NewCloudLoggingSink(ctx context.Context, projectID, logName string) (*CloudLoggingSink, error) {
	c, err := logging.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
	}
	return &CloudLoggingSink{
		client: c,
		logger: c.Logger(logName),
	}, nil
}

// Log - 한 줄을 동기적으로 기록 (실패 시 에러 반환)
func (s *CloudLoggingSink) Log(ctx context.Context, severity Severity, text string) error {
	entry := logging.Entry{
		Payload:  text,
		Severity: logging.Default,
	}
	if severity == SeverityCritical {
		entry.Severity = logging.Critical
	}
	if err := s.logger.LogSync(ctx, entry); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

func (s *CloudLoggingSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// ZapSink - zap 로거로 기록하는 로그 스트림
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger, logName string) *ZapSink {
	return &ZapSink{logger: logger.With(zap.String("log_name", logName))}
}

func (s *ZapSink) Log(_ context.Context, severity Severity, text string) error {
	if severity == SeverityCritical {
		s.logger.Error(text, zap.String("severity", severity.String()))
		return nil
	}
	s.logger.Info(text, zap.String("severity", severity.String()))
	return nil
}
