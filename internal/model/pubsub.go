package model

import "time"

// PushRequest - Pub/Sub push 구독이 HTTP POST 로 전달하는 envelope
type PushRequest struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

// PubSubMessage - Pub/Sub 메시지
//
// Data 는 base64 로 인코딩된 원본 페이로드.
// 필드 자체가 없으면 nil, 빈 문자열이면 "" 로 구분한다.
type PubSubMessage struct {
	Data        *string           `json:"data,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime time.Time         `json:"publishTime,omitempty"`
}

// PushResponse - push 처리 결과 응답
type PushResponse struct {
	Status    string `json:"status"`
	Notified  bool   `json:"notified"`
	MessageID string `json:"messageId,omitempty"`
}

// ErrorResponse - 에러 응답
type ErrorResponse struct {
	Error string `json:"error"`
}
