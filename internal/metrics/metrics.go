// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outcome 라벨 값
const (
	OutcomeIgnored  = "ignored"
	OutcomeLogged   = "logged"
	OutcomeNotified = "notified"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// result 라벨 값
const (
	EmailSent   = "sent"
	EmailFailed = "failed"
)

var (
	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alert_notifier",
		Name:      "messages_total",
		Help:      "Alert messages handled, by outcome.",
	}, []string{"outcome"})

	Emails = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alert_notifier",
		Name:      "emails_total",
		Help:      "Alert emails attempted, by result.",
	}, []string{"result"})
)
