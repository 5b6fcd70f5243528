// Alert 처리 비즈니스 로직 정의
// trigger(handler, pull 구독)에서 받은 메시지를 디코딩하고 로그 스트림과 메일로 전달
//
// 처리 흐름:
//  1. data 필드가 없으면 아무것도 하지 않음
//  2. base64 + JSON 디코딩 (실패 시 이후 단계 없이 에러 반환)
//  3. 기본 severity 로 알림 전체 내용 기록
//  4. CPU 값이 있으면 CRITICAL 로그 기록 후 메일 1건 전송
//
// 호출 간 공유하는 상태는 없다 (sink, mailer 는 읽기 전용 핸들).

package service

import (
	"context"
	"fmt"

	"github.com/kube-rca/cpu-alert-notifier/internal/client"
	"github.com/kube-rca/cpu-alert-notifier/internal/metrics"
	"github.com/kube-rca/cpu-alert-notifier/internal/model"
	tmpl "github.com/kube-rca/cpu-alert-notifier/internal/template"
	"go.uber.org/zap"
)

// alertMailer - 메일 전송 인터페이스
type alertMailer interface {
	SendAlert(ctx context.Context, instanceID, value string) error
}

// Result - 한 번의 호출 결과
type Result struct {
	// data 필드가 없어 처리하지 않음
	Skipped bool
	// 메일 전송까지 완료
	Notified   bool
	ResourceID string
	Value      string
}

// AlertService 구조체 정의
type AlertService struct {
	sink   client.LogSink
	mailer alertMailer
	logger *zap.Logger
}

// AlertService 객체 생성
func NewAlertService(sink client.LogSink, mailer alertMailer, logger *zap.Logger) *AlertService {
	return &AlertService{
		sink:   sink,
		mailer: mailer,
		logger: logger.With(zap.String("component", "alert-service")),
	}
}

// HandleMessage - push envelope 의 메시지 처리
func (s *AlertService) HandleMessage(ctx context.Context, msg model.PubSubMessage) (Result, error) {
	if msg.Data == nil {
		s.skip(msg.MessageID)
		return Result{Skipped: true}, nil
	}

	alert, raw, err := DecodeAlert(*msg.Data)
	if err != nil {
		metrics.Messages.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Result{}, err
	}
	return s.process(ctx, alert, raw)
}

// HandlePayload - 이미 base64 디코딩된 페이로드 처리 (pull 구독)
//
// 빈 페이로드는 data 필드가 없는 메시지와 같게 취급한다.
func (s *AlertService) HandlePayload(ctx context.Context, messageID string, payload []byte) (Result, error) {
	if len(payload) == 0 {
		s.skip(messageID)
		return Result{Skipped: true}, nil
	}

	alert, raw, err := ParseAlert(payload)
	if err != nil {
		metrics.Messages.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Result{}, err
	}
	return s.process(ctx, alert, raw)
}

func (s *AlertService) skip(messageID string) {
	metrics.Messages.WithLabelValues(metrics.OutcomeIgnored).Inc()
	s.logger.Debug("message has no data, skipping", zap.String("message_id", messageID))
}

func (s *AlertService) process(ctx context.Context, alert *model.Alert, raw []byte) (Result, error) {
	data := tmpl.AlertDataFromModel(alert, raw)
	res := Result{ResourceID: data.ResourceID, Value: data.Value}

	// 1. 알림 전체 내용 기록
	if err := s.sink.Log(ctx, client.SeverityDefault, tmpl.Render(tmpl.SummaryLine, &data)); err != nil {
		metrics.Messages.WithLabelValues(metrics.OutcomeFailed).Inc()
		return res, fmt.Errorf("failed to log alert: %w", err)
	}

	// 2. CPU 값이 없으면 여기서 종료 (0 은 유효한 값)
	if !alert.MetricValue().Present() {
		metrics.Messages.WithLabelValues(metrics.OutcomeLogged).Inc()
		s.logger.Info("alert has no cpu value, email not sent", zap.String("resource_id", res.ResourceID))
		return res, nil
	}

	// 3. CRITICAL 로그
	if err := s.sink.Log(ctx, client.SeverityCritical, tmpl.Render(tmpl.CriticalLine, &data)); err != nil {
		metrics.Messages.WithLabelValues(metrics.OutcomeFailed).Inc()
		return res, fmt.Errorf("failed to log critical alert: %w", err)
	}

	// 4. 메일 전송
	if err := s.mailer.SendAlert(ctx, data.ResourceID, data.Value); err != nil {
		metrics.Emails.WithLabelValues(metrics.EmailFailed).Inc()
		metrics.Messages.WithLabelValues(metrics.OutcomeFailed).Inc()
		return res, fmt.Errorf("failed to send alert email: %w", err)
	}
	metrics.Emails.WithLabelValues(metrics.EmailSent).Inc()
	metrics.Messages.WithLabelValues(metrics.OutcomeNotified).Inc()

	s.logger.Info("alert email sent",
		zap.String("resource_id", res.ResourceID),
		zap.String("value", res.Value),
	)
	res.Notified = true
	return res, nil
}
