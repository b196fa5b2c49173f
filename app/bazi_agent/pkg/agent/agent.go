package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	dm "github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/observe"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/prompt"
)

// ErrEmptyResponse 模型未返回消息
var ErrEmptyResponse = errors.New("empty model response")

// Params 采样参数
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// ParamsFrom 从 LLM 配置读取采样参数
func ParamsFrom(cfg config.LLMConfig) Params {
	return Params{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
	}
}

func (p Params) options() []model.Option {
	var opts []model.Option
	if p.Model != "" {
		opts = append(opts, model.WithModel(p.Model))
	}
	if p.Temperature > 0 {
		opts = append(opts, model.WithTemperature(p.Temperature))
	}
	if p.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(p.MaxTokens))
	}
	if p.TopP > 0 {
		opts = append(opts, model.WithTopP(p.TopP))
	}
	return opts
}

// NewChatModel 初始化 OpenAI 协议兼容的模型（DeepSeek 等）
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	temperature, topP, maxTokens := cfg.Temperature, cfg.TopP, cfg.MaxTokens
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return cm, nil
}

// Agent 叙述生成智能体。六种智能体只在 Spec（模板与名称）上不同。
type Agent struct {
	spec    Spec
	tpl     einoprompt.ChatTemplate
	store   prompt.Store
	cm      model.BaseChatModel
	opts    []model.Option
	limiter *rate.Limiter
	rec     observe.Recorder
}

// Deps 智能体共享的依赖
type Deps struct {
	Prompts  prompt.Store
	Model    model.BaseChatModel
	Params   Params
	Limiter  *rate.Limiter // 可为 nil
	Recorder observe.Recorder
}

// New 创建指定种类的智能体
func New(v Variant, d Deps) *Agent {
	spec := v.Spec()
	rec := d.Recorder
	if rec == nil {
		rec = observe.Nop()
	}
	return &Agent{
		spec:    spec,
		tpl:     einoprompt.FromMessages(schema.FString, schema.UserMessage(prompt.Compose(d.Prompts, spec.Template))),
		store:   d.Prompts,
		cm:      d.Model,
		opts:    d.Params.options(),
		limiter: d.Limiter,
		rec:     rec,
	}
}

// NewAll 按种类列表批量创建
func NewAll(vs []Variant, d Deps) []*Agent {
	out := make([]*Agent, 0, len(vs))
	for _, v := range vs {
		out = append(out, New(v, d))
	}
	return out
}

// Spec 静态配置
func (a *Agent) Spec() Spec { return a.spec }

// Fallback 该智能体的兜底文案
func (a *Agent) Fallback() string { return FallbackText(a.spec.Title) }

// FallbackText 智能体暂不可用时的固定文案
func FallbackText(title string) string {
	return title + "分析暂时不可用，请稍后重试。"
}

// Analyze 执行分析，任何错误都转换为兜底文案，从不向调用方返回错误
func (a *Agent) Analyze(ctx context.Context, sc dm.SharedContext) string {
	return a.Run(ctx, sc).Text
}

// Run 执行分析并返回带失败标记的结果
func (a *Agent) Run(ctx context.Context, sc dm.SharedContext) (out dm.AgentOutcome) {
	start := time.Now()
	out.AgentID = a.spec.ID

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic: %v", r)
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			out.Text = a.Fallback()
			a.rec.Record(observe.Event{
				Name:       observe.AgentFailed,
				Message:    fmt.Sprintf("%s 分析失败", a.spec.Title),
				Agent:      a.spec.ID,
				ReportType: string(sc.ReportType),
				Duration:   out.Duration,
				Err:        out.Err,
			})
			return
		}
		a.rec.Record(observe.Event{
			Name:       observe.AgentDone,
			Message:    fmt.Sprintf("%s 分析完成", a.spec.Title),
			Agent:      a.spec.ID,
			ReportType: string(sc.ReportType),
			Duration:   out.Duration,
			Length:     utf8.RuneCountInString(out.Text),
		})
	}()

	text, err := a.generate(ctx, sc)
	out.Text, out.Err = text, err
	return out
}

func (a *Agent) generate(ctx context.Context, sc dm.SharedContext) (string, error) {
	msgs, err := a.Render(ctx, sc)
	if err != nil {
		return "", err
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if a.cm == nil {
		return "", errors.New("chat model not configured")
	}
	resp, err := a.cm.Generate(ctx, msgs, a.opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Content), nil
}

// Render 用共享上下文渲染提示词
func (a *Agent) Render(ctx context.Context, sc dm.SharedContext) ([]*schema.Message, error) {
	msgs, err := a.tpl.Format(ctx, Variables(sc, prompt.Focus(a.store, sc.ReportType)))
	if err != nil {
		return nil, fmt.Errorf("render prompt %s: %w", a.spec.Template, err)
	}
	return msgs, nil
}

// Variables 模板变量
func Variables(sc dm.SharedContext, focus string) map[string]any {
	return map[string]any{
		"user_name":     sc.User.Name,
		"gender":        string(sc.User.Gender),
		"complete_data": FormatDataset(sc.Dataset),
		"current_time":  sc.CurrentTime(),
		"question":      sc.User.QuestionOrDefault(),
		"focus":         focus,
	}
}

// FormatDataset 将运势数据整体渲染为提示词中的 JSON 段落
func FormatDataset(ds dm.FortuneDataset) string {
	return "完整命理分析数据（JSON格式）：\n" + ds.Indent() + `

请根据以上JSON数据进行专业分析，数据包含：
1. 八字信息：四柱、格局、十神、五行等基础命理要素
2. 运势信息：各方面运势分析和预测
3. 详细分析：性格特点、发展建议等深度解读

请综合所有信息进行专业分析，不要在回答中显示原始JSON数据。`
}
