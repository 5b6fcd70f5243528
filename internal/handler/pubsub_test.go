package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/kube-rca/cpu-alert-notifier/internal/model"
	"github.com/kube-rca/cpu-alert-notifier/internal/service"
	"go.uber.org/zap"
)

type fakeMessageHandler struct {
	result   service.Result
	err      error
	received []model.PubSubMessage
	deadline bool
}

func (f *fakeMessageHandler) HandleMessage(ctx context.Context, msg model.PubSubMessage) (service.Result, error) {
	f.received = append(f.received, msg)
	_, f.deadline = ctx.Deadline()
	return f.result, f.err
}

func newPushRouter(h *fakeMessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/pubsub/push", NewPubSubHandler(h, time.Second, zap.NewNop()).Push)
	return r
}

func postPush(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestPushHandler(t *testing.T) {
	envelope := `{"message":{"data":"eyJpbmNpZGVudCI6e319","messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`

	tests := []struct {
		name       string
		body       string
		result     service.Result
		err        error
		wantStatus int
		wantBody   any
	}{
		{
			name:       "processed",
			body:       envelope,
			result:     service.Result{Notified: true, ResourceID: "vm-1", Value: "95"},
			wantStatus: http.StatusOK,
			wantBody:   model.PushResponse{Status: "processed", Notified: true, MessageID: "m-1"},
		},
		{
			name:       "ignored",
			body:       `{"message":{"messageId":"m-2"}}`,
			result:     service.Result{Skipped: true},
			wantStatus: http.StatusOK,
			wantBody:   model.PushResponse{Status: "ignored", MessageID: "m-2"},
		},
		{
			name:       "malformed-alert",
			body:       envelope,
			err:        fmt.Errorf("%w: unexpected end of JSON input", service.ErrMalformedAlert),
			wantStatus: http.StatusBadRequest,
			wantBody:   model.ErrorResponse{Error: "malformed alert: unexpected end of JSON input"},
		},
		{
			name:       "invalid-encoding",
			body:       envelope,
			err:        fmt.Errorf("%w: illegal base64 data", service.ErrInvalidEncoding),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "mailer-failure",
			body:       envelope,
			err:        errors.New("send alert email: dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   model.ErrorResponse{Error: "failed to handle alert"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeMessageHandler{result: tt.result, err: tt.err}
			w := postPush(newPushRouter(h), tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if len(h.received) != 1 {
				t.Fatalf("expected one HandleMessage call, got %d", len(h.received))
			}
			if !h.deadline {
				t.Fatalf("request context should carry the configured timeout")
			}
			if tt.wantBody == nil {
				return
			}
			switch want := tt.wantBody.(type) {
			case model.PushResponse:
				var got model.PushResponse
				if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Fatalf("response mismatch (-want +got):\n%s", diff)
				}
			case model.ErrorResponse:
				var got model.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Fatalf("response mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestPushHandlerPassesData(t *testing.T) {
	h := &fakeMessageHandler{}
	postPush(newPushRouter(h), `{"message":{"data":"","attributes":{"k":"v"}}}`)

	if len(h.received) != 1 {
		t.Fatalf("expected one call, got %d", len(h.received))
	}
	got := h.received[0]
	if got.Data == nil || *got.Data != "" {
		t.Fatalf("empty data field must reach the service as an empty string, got %v", got.Data)
	}
	if got.Attributes["k"] != "v" {
		t.Fatalf("attributes not forwarded: %+v", got.Attributes)
	}
}

func TestPushHandlerInvalidEnvelope(t *testing.T) {
	bodies := map[string]string{
		"empty":      ``,
		"not-json":   `message=1`,
		"wrong-type": `{"message":"data"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			h := &fakeMessageHandler{}
			w := postPush(newPushRouter(h), body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if len(h.received) != 0 {
				t.Fatalf("service must not be called for an invalid envelope")
			}
		})
	}
}
