// Pub/Sub pull 구독 클라이언트 정의
//
// 메시지 처리 결과에 따라 ack / nack 만 결정하고,
// 재전달 정책은 Pub/Sub 구독 설정을 따른다.

package client

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// MessageHandler - 메시지 1건 처리 (nil 이면 ack, 에러면 nack)
type MessageHandler func(ctx context.Context, msg *pubsub.Message) error

// ackNacker - *pubsub.Message 의 ack/nack 만 추출 (테스트용)
type ackNacker interface {
	Ack()
	Nack()
}

// receiver - *pubsub.Subscription 중 사용하는 메서드만 추출 (테스트용)
type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Subscriber 구조체 정의
type Subscriber struct {
	client *pubsub.Client
	sub    receiver
	logger *zap.Logger
}

// NewSubscriber - 프로젝트/구독 ID 로 pull 구독자 생성
func NewSubscriber(ctx context.Context, projectID, subscriptionID string, maxOutstanding int, logger *zap.Logger) (*Subscriber, error) {
	c, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	sub := c.Subscription(subscriptionID)
	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding

	return &Subscriber{
		client: c,
		sub:    sub,
		logger: logger.With(zap.String("subscription", subscriptionID)),
	}, nil
}

// Run - ctx 가 취소될 때까지 메시지를 받아 handle 에 전달
func (s *Subscriber) Run(ctx context.Context, handle MessageHandler) error {
	s.logger.Info("pubsub receiver started")
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		settle(msg, handle(ctx, msg), s.logger.With(zap.String("message_id", msg.ID)))
	})
	if err != nil {
		return fmt.Errorf("pubsub receive failed: %w", err)
	}
	s.logger.Info("pubsub receiver stopped")
	return nil
}

func (s *Subscriber) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func settle(msg ackNacker, err error, logger *zap.Logger) {
	if err != nil {
		logger.Warn("message handling failed, nacking", zap.Error(err))
		msg.Nack()
		return
	}
	msg.Ack()
}
