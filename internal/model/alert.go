// Cloud Monitoring 알림 페이로드 구조체 정의
// decoder, service, client 레이어에서 공통으로 사용하기 때문에 model 레이어에 별도로 정의

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Alert - Pub/Sub 메시지 data 에 담겨오는 알림 문서
type Alert struct {
	// incident 가 없는 알림도 허용 (요약 로그만 남김)
	Incident *Incident `json:"incident"`
	Version  string    `json:"version,omitempty"`
}

// Incident - 모니터링 플랫폼이 감지한 단일 이상 상황
type Incident struct {
	// ResourceID: 모니터링 대상 인스턴스 식별자 (value 가 있으면 필수)
	ResourceID string `json:"resource_id"`

	// Value: CPU 사용률 (%). 필드가 없거나 null 이면 nil
	Value *MetricValue `json:"value"`

	IncidentID    string `json:"incident_id,omitempty"`
	ResourceName  string `json:"resource_name,omitempty"`
	PolicyName    string `json:"policy_name,omitempty"`
	ConditionName string `json:"condition_name,omitempty"`
	State         string `json:"state,omitempty" validate:"omitempty,oneof=open closed"`
	URL           string `json:"url,omitempty" validate:"omitempty,url"`
	Summary       string `json:"summary,omitempty"`
	StartedAt     int64  `json:"started_at,omitempty" validate:"gte=0"`
	EndedAt       int64  `json:"ended_at,omitempty" validate:"gte=0"`
}

// ResourceID - incident 가 없으면 빈 문자열
func (a *Alert) ResourceID() string {
	if a == nil || a.Incident == nil {
		return ""
	}
	return a.Incident.ResourceID
}

// MetricValue - incident 가 없으면 nil
func (a *Alert) MetricValue() *MetricValue {
	if a == nil || a.Incident == nil {
		return nil
	}
	return a.Incident.Value
}

// MetricValue - 숫자 또는 숫자 문자열로 들어오는 지표 값
//
// 빈 문자열("")은 "값 없음"으로 취급하고, 0 은 유효한 값으로 취급한다.
type MetricValue struct {
	raw string
	num float64
}

// NewMetricValue - 테스트 및 내부 생성용
func NewMetricValue(v float64) *MetricValue {
	return &MetricValue{raw: strconv.FormatFloat(v, 'f', -1, 64), num: v}
}

func (v *MetricValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("metric value: empty input")
	}

	var text string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("metric value: %w", err)
		}
		if text == "" {
			*v = MetricValue{}
			return nil
		}
	} else {
		text = string(data)
	}

	num, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return fmt.Errorf("metric value %s is not a number", data)
	}
	*v = MetricValue{raw: strconv.FormatFloat(num, 'f', -1, 64), num: num}
	return nil
}

func (v MetricValue) MarshalJSON() ([]byte, error) {
	if v.raw == "" {
		return []byte(`""`), nil
	}
	return []byte(v.raw), nil
}

// Present - 값이 실제로 존재하는지 (nil, "" 이면 false, 0 이면 true)
func (v *MetricValue) Present() bool {
	return v != nil && v.raw != ""
}

func (v *MetricValue) Float64() float64 {
	if v == nil {
		return 0
	}
	return v.num
}

func (v *MetricValue) String() string {
	if v == nil {
		return ""
	}
	return v.raw
}
