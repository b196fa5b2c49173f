package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/agent"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/cache"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	dm "github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/observe"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/prompt"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/report"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/yuanfenju"
)

// Fetcher 运势数据来源
type Fetcher interface {
	Fetch(ctx context.Context, u dm.UserInfo, rt dm.ReportType) (dm.FortuneDataset, error)
}

// Analyzer 一个叙述智能体，Run 不返回错误，失败时产出兜底文案
type Analyzer interface {
	Spec() agent.Spec
	Run(ctx context.Context, sc dm.SharedContext) dm.AgentOutcome
}

// Engine 编排器：获取数据 → 并发调度智能体 → 收集 → 组装报告
type Engine struct {
	fetcher Fetcher
	cache   *cache.FortuneCache
	agents  []Analyzer
	rec     observe.Recorder
	now     func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithRecorder 设置可观测性协作者
func WithRecorder(r observe.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithClock 设置时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New 用已构造好的组件创建引擎
func New(fetcher Fetcher, fc *cache.FortuneCache, agents []Analyzer, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		cache:   fc,
		agents:  agents,
		rec:     observe.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.cache == nil {
		e.cache = cache.New(cache.NewMemoryStore(0), e.rec)
	}
	return e
}

// Components 由配置构造出的组件，供 HTTP 层复用
type Components struct {
	Engine *Engine
	Client *yuanfenju.Client
}

// NewEngine 按配置初始化全部组件，返回的 cleanup 释放缓存连接
func NewEngine(ctx context.Context, cfg *config.Config, rec observe.Recorder) (*Components, func(), error) {
	if rec == nil {
		rec = observe.Nop()
	}

	// 初始化 LLM
	cm, err := agent.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	// 初始化限流器
	limit := rate.Limit(float64(cfg.Concurrency.RPM) / 60.0)
	limiter := rate.NewLimiter(limit, cfg.Concurrency.QPS)

	prompts, err := prompt.NewLibrary(cfg.Agents.PromptDir)
	if err != nil {
		return nil, nil, fmt.Errorf("提示词加载失败: %w", err)
	}

	variants, err := agent.Select(cfg.Agents.Enabled)
	if err != nil {
		return nil, nil, fmt.Errorf("智能体配置错误: %w", err)
	}
	agents := agent.NewAll(variants, agent.Deps{
		Prompts:  prompts,
		Model:    cm,
		Params:   agent.ParamsFrom(cfg.LLM),
		Limiter:  limiter,
		Recorder: rec,
	})

	store, cleanup, err := cache.NewStore(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("缓存初始化失败: %w", err)
	}

	client := yuanfenju.NewClient(cfg.Yuanfenju, yuanfenju.WithRecorder(rec))
	analyzers := make([]Analyzer, len(agents))
	for i, a := range agents {
		analyzers[i] = a
	}

	fc := cache.New(store, rec, cache.WithFetchTimeout(client.Budget()))
	e := New(client, fc, analyzers, WithRecorder(rec))
	return &Components{Engine: e, Client: client}, cleanup, nil
}

// Cache 运势数据缓存
func (e *Engine) Cache() *cache.FortuneCache { return e.cache }

// Produce 生成一份报告。只有数据获取失败会中止，此时不调度任何智能体。
func (e *Engine) Produce(ctx context.Context, u dm.UserInfo, rt dm.ReportType) (*dm.PredictionReport, error) {
	if rt == "" {
		rt = dm.ReportComprehensive
	}
	start := e.now()
	user := observe.MaskName(u.Name)
	e.rec.Record(observe.Event{
		Name:       observe.ProduceStart,
		Message:    fmt.Sprintf("开始生成报告，出生地 %s", observe.MaskLocation(u.BirthProvince)),
		User:       user,
		ReportType: string(rt),
	})

	ds, err := e.fetch(ctx, u, rt)
	if err != nil {
		e.rec.Record(observe.Event{
			Name:       observe.ProduceFailed,
			Message:    "运势数据获取失败",
			User:       user,
			ReportType: string(rt),
			Duration:   e.now().Sub(start),
			Err:        err,
		})
		return nil, err
	}

	sc := dm.SharedContext{User: u, Dataset: ds, ReportType: rt, Now: start}
	outcomes := e.dispatch(ctx, sc)

	results := make([]report.Result, len(outcomes))
	for i, o := range outcomes {
		results[i] = report.Result{Spec: e.agents[i].Spec(), Text: o.Text}
	}
	r := report.Assemble(results, report.Meta{ReportType: rt, UserName: u.Name, Now: e.now()})

	e.rec.Record(observe.Event{
		Name:       observe.ProduceDone,
		Message:    fmt.Sprintf("报告生成完成，共 %d 个分析部分", r.Summary.SectionsCount),
		User:       user,
		ReportType: string(rt),
		Length:     r.Summary.TotalContentLength,
		Duration:   e.now().Sub(start),
	})
	return r, nil
}

func (e *Engine) fetch(ctx context.Context, u dm.UserInfo, rt dm.ReportType) (dm.FortuneDataset, error) {
	return e.cache.GetOrFetch(ctx, u, rt, func(ctx context.Context) (dm.FortuneDataset, error) {
		return e.fetcher.Fetch(ctx, u, rt)
	})
}

// dispatch 并发执行全部智能体，按智能体顺序返回结果，所有 goroutine 结束后才返回
func (e *Engine) dispatch(ctx context.Context, sc dm.SharedContext) []dm.AgentOutcome {
	out := make([]dm.AgentOutcome, len(e.agents))
	var wg sync.WaitGroup
	for i, a := range e.agents {
		wg.Add(1)
		go func(i int, a Analyzer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					spec := a.Spec()
					out[i] = dm.AgentOutcome{
						AgentID: spec.ID,
						Text:    agent.FallbackText(spec.Title),
						Err:     fmt.Errorf("panic: %v", r),
					}
				}
			}()
			out[i] = a.Run(ctx, sc)
		}(i, a)
	}
	wg.Wait()
	return out
}

// AgentState 单个智能体状态
type AgentState struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Ready bool   `json:"ready"`
}

// Status 智能体总体状态
type Status struct {
	TotalAgents int          `json:"total_agents"`
	Agents      []AgentState `json:"agents"`
}

// AgentStatus 返回已配置的智能体
func (e *Engine) AgentStatus() Status {
	s := Status{TotalAgents: len(e.agents), Agents: make([]AgentState, 0, len(e.agents))}
	for _, a := range e.agents {
		spec := a.Spec()
		s.Agents = append(s.Agents, AgentState{ID: spec.ID, Title: spec.Title, Ready: true})
	}
	return s
}

const previewRunes = 100

// Diagnosis 单个智能体的诊断结果
type Diagnosis struct {
	Agent    string        `json:"agent"`
	Title    string        `json:"title"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Length   int           `json:"content_length"`
	Preview  string        `json:"preview"`
	Error    string        `json:"error,omitempty"`
}

// Diagnose 获取一次数据后逐个运行智能体，用于排查单个智能体的问题
func (e *Engine) Diagnose(ctx context.Context, u dm.UserInfo) ([]Diagnosis, error) {
	rt := dm.ReportComprehensive
	ds, err := e.fetch(ctx, u, rt)
	if err != nil {
		return nil, err
	}
	sc := dm.SharedContext{User: u, Dataset: ds, ReportType: rt, Now: e.now()}

	out := make([]Diagnosis, 0, len(e.agents))
	for _, a := range e.agents {
		spec := a.Spec()
		o := a.Run(ctx, sc)
		d := Diagnosis{
			Agent:    spec.ID,
			Title:    spec.Title,
			Success:  !o.Failed(),
			Duration: o.Duration,
			Length:   utf8.RuneCountInString(o.Text),
			Preview:  preview(o.Text, previewRunes),
		}
		if o.Err != nil {
			d.Error = o.Err.Error()
		}
		out = append(out, d)
	}
	return out, nil
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
