package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// streamConnections は接続中のストリーム数。
	streamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifyhub_stream_connections",
		Help: "Current number of open notification streams.",
	})

	// streamEventsWritten は書き込んだイベント数。
	streamEventsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyhub_stream_events_written_total",
		Help: "Total number of events written to notification streams.",
	}, []string{"event"})

	// pushResults はプッシュ配信の結果ごとの件数。
	pushResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyhub_push_total",
		Help: "Total number of push attempts by result.",
	}, []string{"result"})

	// notificationsCreated は永続化した通知の件数。
	notificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyhub_notifications_created_total",
		Help: "Total number of persisted notifications.",
	})

	// notificationsPurged は保持期間切れで削除した通知の件数。
	notificationsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyhub_notifications_purged_total",
		Help: "Total number of read notifications removed by retention.",
	})
)

const (
	pushDelivered = "delivered"
	pushSkipped   = "skipped"
	pushFailed    = "failed"
)
