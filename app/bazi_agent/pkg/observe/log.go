package observe

import (
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// LogRecorder 将事件写入 logrus
type LogRecorder struct {
	log *logrus.Logger
}

// NewLogRecorder 创建基于 logrus 的 Recorder
func NewLogRecorder(l *logrus.Logger) *LogRecorder {
	return &LogRecorder{log: l}
}

// Record 实现 Recorder
func (r *LogRecorder) Record(e Event) {
	fields := logrus.Fields{"event": e.Name}
	if e.Agent != "" {
		fields["agent"] = e.Agent
	}
	if e.ReportType != "" {
		fields["report_type"] = e.ReportType
	}
	if e.User != "" {
		fields["user"] = e.User
	}
	if e.Attempt > 0 {
		fields["attempt"] = e.Attempt
	}
	if e.Length > 0 {
		fields["content_length"] = e.Length
	}
	if e.Duration > 0 {
		fields["duration_ms"] = e.Duration.Milliseconds()
	}
	if e.Err != nil {
		fields["error"] = e.Err.Error()
	}

	msg := e.Message
	if msg == "" {
		msg = e.Name
	}
	r.log.WithFields(fields).Log(levelOf(e), msg)
}

func levelOf(e Event) logrus.Level {
	switch e.Name {
	case FetchFailure, ProduceFailed:
		return logrus.ErrorLevel
	case AgentFailed, CacheWriteErr:
		return logrus.WarnLevel
	case FetchAttempt, CacheHit, CacheMiss:
		if e.Err != nil {
			return logrus.WarnLevel
		}
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// MaskName 姓名脱敏，保留首尾字符：张三丰 -> 张*丰
func MaskName(name string) string {
	n := utf8.RuneCountInString(name)
	if n <= 2 {
		return name
	}
	r := []rune(name)
	return string(r[0]) + strings.Repeat("*", n-2) + string(r[n-1])
}

// MaskLocation 地点脱敏，仅保留前两个字符
func MaskLocation(loc string) string {
	r := []rune(loc)
	if len(r) <= 2 {
		return loc
	}
	return string(r[:2]) + "***"
}
