package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/kube-rca/cpu-alert-notifier/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter - 라우트 등록
//
// auth 가 nil 이면 push 엔드포인트는 인증 없이 열린다.
func NewRouter(push *PubSubHandler, auth service.PushAuthenticator, info ServiceInfo, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(logger), Recovery(logger))

	router.GET("/", Root(info))
	router.GET("/ping", Ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/openapi.json", OpenAPIDoc)

	pushGroup := router.Group("/pubsub")
	if auth != nil {
		pushGroup.Use(PushAuthMiddleware(auth, logger))
	}
	pushGroup.POST("/push", push.Push)

	return router
}
