// Pub/Sub 메시지 data 디코딩
//
// 처리 순서:
//  1. base64 디코딩 (실패 시 ErrInvalidEncoding)
//  2. JSON 파싱 + 스키마 검증 (실패 시 ErrMalformedAlert)

package service

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/kube-rca/cpu-alert-notifier/internal/model"
)

var (
	ErrInvalidEncoding = errors.New("invalid message encoding")
	ErrMalformedAlert  = errors.New("malformed alert")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(incidentStructLevel, model.Incident{})
	return v
}

// incidentStructLevel - value 가 있으면 resource_id 필수
func incidentStructLevel(sl validator.StructLevel) {
	inc := sl.Current().Interface().(model.Incident)
	if inc.Value.Present() && inc.ResourceID == "" {
		sl.ReportError(inc.ResourceID, "resource_id", "ResourceID", "required_with_value", "")
	}
}

// DecodeAlert - base64 data 를 Alert 로 변환
//
// 두 번째 반환값은 로그용으로 공백을 제거한 원본 JSON.
func DecodeAlert(data string) (*model.Alert, []byte, error) {
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return ParseAlert(payload)
}

// ParseAlert - JSON 페이로드를 Alert 로 변환 (pull 구독은 이미 디코딩된 bytes 를 받음)
func ParseAlert(payload []byte) (*model.Alert, []byte, error) {
	if !utf8.Valid(payload) {
		return nil, nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidEncoding)
	}

	if trimmed := bytes.TrimSpace(payload); bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, fmt.Errorf("%w: payload is null", ErrMalformedAlert)
	}

	var alert model.Alert
	if err := json.Unmarshal(payload, &alert); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedAlert, err)
	}
	if err := validate.Struct(&alert); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedAlert, err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedAlert, err)
	}
	return &alert, compact.Bytes(), nil
}
