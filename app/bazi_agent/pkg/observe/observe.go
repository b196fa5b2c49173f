// Package observe 定义核心组件使用的可观测性协作者。
// 组件在构造时注入 Recorder，不依赖全局日志实例。
package observe

import (
	"sync"
	"time"
)

// 事件名称
const (
	FetchAttempt  = "fetch.attempt"
	FetchSuccess  = "fetch.success"
	FetchFailure  = "fetch.failure"
	CacheHit      = "cache.hit"
	CacheMiss     = "cache.miss"
	CacheWriteErr = "cache.write_error"
	AgentDone     = "agent.done"
	AgentFailed   = "agent.failed"
	ProduceStart  = "produce.start"
	ProduceDone   = "produce.done"
	ProduceFailed = "produce.failed"
)

// Event 一条结构化事件，未设置的字段不输出
type Event struct {
	Name       string
	Message    string
	Agent      string
	ReportType string
	User       string // 已脱敏
	Attempt    int
	Length     int
	Duration   time.Duration
	Err        error
}

// Recorder 记录事件。实现必须并发安全，且不能阻塞或返回错误。
type Recorder interface {
	Record(e Event)
}

type nop struct{}

func (nop) Record(Event) {}

// Nop 丢弃所有事件
func Nop() Recorder { return nop{} }

type multi []Recorder

func (m multi) Record(e Event) {
	for _, r := range m {
		r.Record(e)
	}
}

// Multi 将事件分发给多个 Recorder
func Multi(rs ...Recorder) Recorder {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Memory 在内存中保存事件，用于测试与诊断
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Record 实现 Recorder
func (m *Memory) Record(e Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

// Events 返回已记录事件的副本
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Count 统计指定名称的事件数
func (m *Memory) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Name == name {
			n++
		}
	}
	return n
}
