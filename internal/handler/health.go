package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceInfo - 루트 엔드포인트에 노출하는 실행 설정 요약 (비밀값 제외)
type ServiceInfo struct {
	AlertSink    string `json:"alert_sink"`
	AlertLogName string `json:"alert_log_name"`
	PushAuth     string `json:"push_auth"`
}

// 헬스체크 엔드포인트
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Root - 서비스 상태와 알림 경로 설정
func Root(info ServiceInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "cpu-alert-notifier",
			"config":  info,
		})
	}
}
