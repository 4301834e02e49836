package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry 是本进程独立的指标注册表，由 /metrics 端点暴露
var Registry = prometheus.NewRegistry()

var (
	// SessionActive 当前是否存在已登录会话 (1 = signed in, 0 = signed out)
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "campustrack_session_active",
			Help: "Whether an authenticated session is held (1=yes, 0=no).",
		},
	)

	// SubscriptionsActive 活跃订阅句柄数量
	SubscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "campustrack_subscriptions_active",
			Help: "Number of live subscription handles.",
		},
		[]string{"mode"}, // mode: push/poll
	)

	// UpdatesTotal 投递给视图的更新次数
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrack_updates_total",
			Help: "Updates delivered to subscribers, and those dropped as stale.",
		},
		[]string{"resource", "result"}, // result: delivered/stale/error
	)

	// GatewayLatency REST 请求耗时
	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campustrack_gateway_request_duration_seconds",
			Help:    "Latency of REST calls to the backend.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "code"},
	)

	// LocationSamplesTotal 司机端位置采样结果
	LocationSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrack_location_samples_total",
			Help: "Geolocation samples by outcome.",
		},
		[]string{"result"}, // result: sent/throttled/failed/source_error
	)

	// PushDeliveriesTotal Web Push 投递结果
	PushDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrack_push_deliveries_total",
			Help: "Web Push deliveries by outcome.",
		},
		[]string{"result"}, // result: sent/expired/failed
	)

	// RenderFailuresTotal 视图渲染失败并回退的次数
	RenderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrack_render_failures_total",
			Help: "Render failures recovered by the view supervisor.",
		},
		[]string{"view"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SessionActive,
		SubscriptionsActive,
		UpdatesTotal,
		GatewayLatency,
		LocationSamplesTotal,
		PushDeliveriesTotal,
		RenderFailuresTotal,
	)
}
