package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cvUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cv",
			Name:      "uploads_total",
			Help:      "简历上传次数，按文件类型区分。",
		},
		[]string{"content_type"},
	)

	templateSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "designer",
			Name:      "template_saves_total",
			Help:      "设计器保存模板次数，按结果区分。",
		},
		[]string{"outcome"},
	)
)

// ObserveCVUpload 记录一次成功的简历上传。
func ObserveCVUpload(contentType string) {
	cvUploadsTotal.WithLabelValues(contentType).Inc()
}

// ObserveTemplateSave 记录一次设计器保存。stale 表示结果因会话已变更而未回写。
func ObserveTemplateSave(err error, stale bool) {
	outcome := "saved"
	switch {
	case err != nil:
		outcome = "failed"
	case stale:
		outcome = "stale"
	}
	templateSavesTotal.WithLabelValues(outcome).Inc()
}
