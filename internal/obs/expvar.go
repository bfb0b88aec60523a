package obs

import (
	"expvar"
	"sync/atomic"
	"time"
)

var (
	oauthCallbacks = expvar.NewMap("gitee_oauth_callbacks_total")

	usageReportRuns       int64
	usageReportErrors     int64
	usageReportLastOKUnix int64
)

func init() {
	expvar.Publish("usage_report_runs_total", expvar.Func(func() any {
		return atomic.LoadInt64(&usageReportRuns)
	}))
	expvar.Publish("usage_report_errors_total", expvar.Func(func() any {
		return atomic.LoadInt64(&usageReportErrors)
	}))
	expvar.Publish("usage_report_last_ok_unix", expvar.Func(func() any {
		return atomic.LoadInt64(&usageReportLastOKUnix)
	}))
}

// RecordOAuthCallback 按回调结果（logged_in/pending_bind/profile_linked/errored）计数。
func RecordOAuthCallback(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	oauthCallbacks.Add(outcome, 1)
}

func RecordUsageReportRun(ok bool) {
	atomic.AddInt64(&usageReportRuns, 1)
	if ok {
		atomic.StoreInt64(&usageReportLastOKUnix, time.Now().Unix())
		return
	}
	atomic.AddInt64(&usageReportErrors, 1)
}
