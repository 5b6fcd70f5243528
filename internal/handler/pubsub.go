// Pub/Sub push 요청을 처리하는 핸들러
//
// 요청 흐름:
//  1. Pub/Sub 가 POST /pubsub/push 로 envelope 전송
//  2. JSON envelope 를 PushRequest 구조체로 파싱
//  3. service 레이어로 전달 (디코딩, 로그, 메일)
//
// 2xx 가 아닌 응답은 Pub/Sub 에서 nack 으로 처리되어 구독 정책에 따라 재전달된다.

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/cpu-alert-notifier/internal/model"
	"github.com/kube-rca/cpu-alert-notifier/internal/service"
	"go.uber.org/zap"
)

// messageHandler - service.AlertService 중 핸들러가 사용하는 메서드
type messageHandler interface {
	HandleMessage(ctx context.Context, msg model.PubSubMessage) (service.Result, error)
}

// PubSubHandler 구조체 정의
type PubSubHandler struct {
	alertService messageHandler
	timeout      time.Duration
	logger       *zap.Logger
}

// PubSubHandler 객체 생성
func NewPubSubHandler(alertService messageHandler, timeout time.Duration, logger *zap.Logger) *PubSubHandler {
	return &PubSubHandler{
		alertService: alertService,
		timeout:      timeout,
		logger:       logger.With(zap.String("component", "pubsub-push")),
	}
}

// Push godoc
// @Summary Receive a Pub/Sub push message
// @Description Decodes the monitoring alert in message.data, logs it and emails on high CPU.
// @Tags pubsub
// @Accept json
// @Produce json
// @Param request body model.PushRequest true "Pub/Sub push envelope"
// @Success 200 {object} model.PushResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /pubsub/push [post]
func (h *PubSubHandler) Push(c *gin.Context) {
	var req model.PushRequest

	// 1. envelope 파싱
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to parse push envelope", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid payload"})
		return
	}

	logger := h.logger.With(
		zap.String("message_id", req.Message.MessageID),
		zap.String("subscription", req.Subscription),
	)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	// 2. 서비스 레이어 처리
	res, err := h.alertService.HandleMessage(ctx, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEncoding) || errors.Is(err, service.ErrMalformedAlert) {
			logger.Warn("rejected malformed alert", zap.Error(err))
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
			return
		}
		logger.Error("failed to handle alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "failed to handle alert"})
		return
	}

	// 3. 응답
	status := "processed"
	if res.Skipped {
		status = "ignored"
	}
	c.JSON(http.StatusOK, model.PushResponse{
		Status:    status,
		Notified:  res.Notified,
		MessageID: req.Message.MessageID,
	})
}
