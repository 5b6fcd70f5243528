// Package template renders the fixed alert log lines and email body.
//
// 지원하는 변수 형식:
//
//	{{incident.resource_id}}, {{incident.value}}, {{alert.raw}}
//
// 문구는 코드에 고정되어 있으며 사용자가 바꿀 수 없다.
package template

import (
	"strings"

	"github.com/kube-rca/cpu-alert-notifier/internal/model"
)

const (
	// SummaryLine - 기본 severity 로 남기는 수신 로그
	SummaryLine = "High CPU Alert received: {{alert.raw}}"

	// CriticalLine - CPU 값이 있을 때 CRITICAL 로 남기는 로그
	CriticalLine = "Instance {{incident.resource_id}} CPU usage is at {{incident.value}}"

	// EmailBody - 알림 메일 본문 (text/plain)
	EmailBody = "High CPU usage detected on instance {{incident.resource_id}}: {{incident.value}}%"
)

// AlertData - 템플릿 렌더링에 사용할 Alert 데이터
type AlertData struct {
	ResourceID string
	Value      string
	Raw        string
}

// AlertDataFromModel - model.Alert 와 원본 JSON 에서 AlertData 생성
func AlertDataFromModel(alert *model.Alert, raw []byte) AlertData {
	data := AlertData{Raw: string(raw)}
	if alert == nil || alert.Incident == nil {
		return data
	}
	data.ResourceID = alert.Incident.ResourceID
	data.Value = alert.Incident.Value.String()
	return data
}

// Render - 문구의 변수를 실제 값으로 치환
//
// nil 로 전달되면 모든 변수는 빈 문자열로 치환된다.
func Render(text string, alert *AlertData) string {
	if alert == nil {
		alert = &AlertData{}
	}
	return strings.NewReplacer(
		"{{incident.resource_id}}", alert.ResourceID,
		"{{incident.value}}", alert.Value,
		"{{alert.raw}}", alert.Raw,
	).Replace(text)
}
