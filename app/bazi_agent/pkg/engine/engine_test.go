package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/agent"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/cache"
	dm "github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/observe"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/prompt"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/yuanfenju"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.Local)

type countingFetcher struct {
	ds    dm.FortuneDataset
	err   error
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, u dm.UserInfo, rt dm.ReportType) (dm.FortuneDataset, error) {
	f.calls.Add(1)
	if f.err != nil {
		return dm.FortuneDataset{}, f.err
	}
	return f.ds, nil
}

type fakeAnalyzer struct {
	spec    agent.Spec
	text    string
	fail    bool
	panics  bool
	delay   time.Duration
	started func()
	calls   atomic.Int32

	mu   sync.Mutex
	seen dm.SharedContext
}

func (a *fakeAnalyzer) Spec() agent.Spec { return a.spec }

func (a *fakeAnalyzer) Run(ctx context.Context, sc dm.SharedContext) dm.AgentOutcome {
	a.calls.Add(1)
	a.mu.Lock()
	a.seen = sc
	a.mu.Unlock()
	if a.started != nil {
		a.started()
	}
	if a.panics {
		panic("boom")
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.fail {
		return dm.AgentOutcome{AgentID: a.spec.ID, Text: agent.FallbackText(a.spec.Title), Err: errors.New("backend down")}
	}
	return dm.AgentOutcome{AgentID: a.spec.ID, Text: a.text}
}

func newAnalyzers(texts ...string) []*fakeAnalyzer {
	specs := agent.Specs()
	out := make([]*fakeAnalyzer, len(texts))
	for i, t := range texts {
		out[i] = &fakeAnalyzer{spec: specs[i], text: t}
	}
	return out
}

func asAnalyzers(fs []*fakeAnalyzer) []Analyzer {
	out := make([]Analyzer, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

func testUser() dm.UserInfo {
	return dm.UserInfo{
		Name: "张三丰", Gender: dm.GenderMale,
		BirthYear: 1990, BirthMonth: 5, BirthDay: 15, BirthHour: 14, BirthMinute: 30,
		BirthProvince: "广东省", BirthCity: "广州",
	}
}

func testDataset() dm.FortuneDataset {
	return dm.NewFortuneDataset([]byte(`{"bazi":{"year":"庚午","month":"辛巳"}}`))
}

func TestProduce_AllSucceed(t *testing.T) {
	fetcher := &countingFetcher{ds: testDataset()}
	fakes := newAnalyzers("基础", "用神", "大运流年", "人生", "方案", "回答")
	rec := &observe.Memory{}
	e := New(fetcher, nil, asAnalyzers(fakes), WithRecorder(rec), WithClock(func() time.Time { return fixedNow }))

	r, err := e.Produce(context.Background(), testUser(), dm.ReportComprehensive)
	require.NoError(t, err)

	assert.Equal(t, 6, r.Summary.SectionsCount)
	assert.Len(t, r.Summary.AgentsUsed, 6)
	total := 0
	for _, s := range r.Sections {
		total += utf8.RuneCountInString(s.Content)
	}
	assert.Equal(t, total, r.Summary.TotalContentLength)
	assert.Equal(t, "foundation_analysis", r.Sections[0].Key)
	assert.Equal(t, "consultation", r.Sections[5].Key)
	assert.Equal(t, "2026年10月19日 10:00:00", r.Info.GeneratedTime)

	for _, f := range fakes {
		assert.EqualValues(t, 1, f.calls.Load())
		assert.Equal(t, testDataset().Bytes(), f.seen.Dataset.Bytes())
		assert.Equal(t, dm.ReportComprehensive, f.seen.ReportType)
	}

	require.Equal(t, 1, rec.Count(observe.ProduceStart))
	require.Equal(t, 1, rec.Count(observe.ProduceDone))
	for _, ev := range rec.Events() {
		if ev.Name == observe.ProduceStart {
			assert.Equal(t, "张*丰", ev.User)
			assert.NotContains(t, ev.Message, "广东省")
		}
	}
}

func TestProduce_DefaultReportType(t *testing.T) {
	fakes := newAnalyzers("甲")
	e := New(&countingFetcher{ds: testDataset()}, nil, asAnalyzers(fakes))

	r, err := e.Produce(context.Background(), testUser(), "")
	require.NoError(t, err)
	assert.Equal(t, dm.ReportComprehensive, r.Info.ReportType)
	assert.Equal(t, dm.ReportComprehensive, fakes[0].seen.ReportType)
}

func TestProduce_PartialFailure(t *testing.T) {
	fakes := newAnalyzers("基础", "用神", "大运", "人生", "方案", "回答")
	fakes[1].fail = true
	fakes[3].fail = true
	e := New(&countingFetcher{ds: testDataset()}, nil, asAnalyzers(fakes))

	r, err := e.Produce(context.Background(), testUser(), dm.ReportCareer)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Summary.SectionsCount)

	s, ok := r.Section("yongshen_analysis")
	require.True(t, ok)
	assert.Equal(t, "用神分析分析暂时不可用，请稍后重试。", s.Content)
	s, ok = r.Section("life_aspects")
	require.True(t, ok)
	assert.Equal(t, "人生各方面分析分析暂时不可用，请稍后重试。", s.Content)
	s, ok = r.Section("foundation_analysis")
	require.True(t, ok)
	assert.Equal(t, "基础", s.Content)
}

func TestProduce_EmptyTextDropsSection(t *testing.T) {
	fakes := newAnalyzers("基础", "", "大运")
	e := New(&countingFetcher{ds: testDataset()}, nil, asAnalyzers(fakes))

	r, err := e.Produce(context.Background(), testUser(), dm.ReportComprehensive)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Summary.SectionsCount)
	assert.Equal(t, []string{"foundation", "yongshen", "fortune"}, r.Summary.AgentsUsed)
}

func TestProduce_PanicBecomesFallback(t *testing.T) {
	fakes := newAnalyzers("基础", "用神")
	fakes[0].panics = true
	e := New(&countingFetcher{ds: testDataset()}, nil, asAnalyzers(fakes))

	r, err := e.Produce(context.Background(), testUser(), dm.ReportComprehensive)
	require.NoError(t, err)
	s, ok := r.Section("foundation_analysis")
	require.True(t, ok)
	assert.Equal(t, agent.FallbackText("八字基础分析"), s.Content)
}

func TestProduce_FetchFailureDispatchesNothing(t *testing.T) {
	fetcher := &countingFetcher{err: &yuanfenju.DataFetchError{
		Attempts: 1,
		Err:      fmt.Errorf("%w: errcode=1 errmsg=invalid key", yuanfenju.ErrInvalidResponse),
	}}
	fakes := newAnalyzers("a", "b", "c", "d", "e", "f")
	rec := &observe.Memory{}
	e := New(fetcher, nil, asAnalyzers(fakes), WithRecorder(rec))

	r, err := e.Produce(context.Background(), testUser(), dm.ReportComprehensive)
	require.Error(t, err)
	assert.Nil(t, r)

	var fe *yuanfenju.DataFetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(err, yuanfenju.ErrInvalidResponse))

	for _, f := range fakes {
		assert.Zero(t, f.calls.Load())
	}
	assert.Zero(t, e.Cache().Len(context.Background()))
	assert.Equal(t, 1, rec.Count(observe.ProduceFailed))
	assert.Zero(t, rec.Count(observe.ProduceDone))
}

func TestProduce_CachedDatasetReused(t *testing.T) {
	fetcher := &countingFetcher{ds: testDataset()}
	e := New(fetcher, cache.New(cache.NewMemoryStore(0), nil), asAnalyzers(newAnalyzers("甲", "乙")))
	ctx := context.Background()

	_, err := e.Produce(ctx, testUser(), dm.ReportComprehensive)
	require.NoError(t, err)
	_, err = e.Produce(ctx, testUser(), dm.ReportComprehensive)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fetcher.calls.Load())

	_, err = e.Produce(ctx, testUser(), dm.ReportCareer)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fetcher.calls.Load())
	assert.Equal(t, 2, e.Cache().Len(ctx))
}

func TestProduce_AgentsRunConcurrently(t *testing.T) {
	const n = 6
	var (
		count   atomic.Int32
		allIn   = make(chan struct{})
		overlap atomic.Int32
	)
	fakes := newAnalyzers("一", "二", "三", "四", "五", "六")
	for _, f := range fakes {
		f.delay = 50 * time.Millisecond
		f.started = func() {
			if count.Add(1) == n {
				close(allIn)
			}
			select {
			case <-allIn:
				overlap.Add(1)
			case <-time.After(2 * time.Second):
			}
		}
	}
	e := New(&countingFetcher{ds: testDataset()}, nil, asAnalyzers(fakes))

	start := time.Now()
	r, err := e.Produce(context.Background(), testUser(), dm.ReportComprehensive)
	require.NoError(t, err)

	assert.EqualValues(t, n, overlap.Load(), "all agents should be in flight at the same time")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, n, r.Summary.SectionsCount)
}

func TestProduce_ConcurrentCallsShareFetch(t *testing.T) {
	fetcher := &countingFetcher{ds: testDataset()}
	e := New(fetcher, nil, asAnalyzers(newAnalyzers("甲")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Produce(context.Background(), testUser(), dm.ReportComprehensive)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, fetcher.calls.Load())
	assert.Equal(t, 1, e.Cache().Len(context.Background()))
}

// routedChatModel 根据提示词中的智能体标记决定成功或失败
type routedChatModel struct {
	failing map[string]bool
}

func (m *routedChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	content := input[len(input)-1].Content
	for id := range m.failing {
		if strings.Contains(content, "agent:"+id+";") {
			return nil, errors.New("upstream 503")
		}
	}
	first, _, _ := strings.Cut(content, ";")
	return schema.AssistantMessage("分析结果 "+strings.TrimPrefix(first, "agent:"), nil), nil
}

func (m *routedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestProduce_WithAgents(t *testing.T) {
	templates := map[string]string{prompt.CommonTemplate: "{user_name} {question}"}
	for _, s := range agent.Specs() {
		templates[s.Template] = "agent:" + s.ID + ";"
	}
	agents := agent.NewAll(agent.All(), agent.Deps{
		Prompts: prompt.NewMapStore(templates),
		Model:   &routedChatModel{failing: map[string]bool{"fortune": true, "solution": true}},
	})
	analyzers := make([]Analyzer, len(agents))
	for i, a := range agents {
		analyzers[i] = a
	}
	e := New(&countingFetcher{ds: testDataset()}, nil, analyzers)

	r, err := e.Produce(context.Background(), testUser(), dm.ReportComprehensive)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Summary.SectionsCount)

	s, _ := r.Section("foundation_analysis")
	assert.Equal(t, "分析结果 foundation", s.Content)
	s, _ = r.Section("fortune_prediction")
	assert.Equal(t, "大运流年分析分析暂时不可用，请稍后重试。", s.Content)
	s, _ = r.Section("solutions")
	assert.Equal(t, "解决方案分析暂时不可用，请稍后重试。", s.Content)
}

func TestAgentStatus(t *testing.T) {
	e := New(&countingFetcher{}, nil, asAnalyzers(newAnalyzers("a", "b", "c")))
	s := e.AgentStatus()
	assert.Equal(t, 3, s.TotalAgents)
	require.Len(t, s.Agents, 3)
	assert.Equal(t, AgentState{ID: "foundation", Title: "八字基础分析", Ready: true}, s.Agents[0])
}

func TestDiagnose(t *testing.T) {
	fakes := newAnalyzers(strings.Repeat("命", 150), "短")
	fakes[1].fail = true
	e := New(&countingFetcher{ds: testDataset()}, nil, asAnalyzers(fakes))

	ds, err := e.Diagnose(context.Background(), testUser())
	require.NoError(t, err)
	require.Len(t, ds, 2)

	assert.True(t, ds[0].Success)
	assert.Equal(t, 150, ds[0].Length)
	assert.Equal(t, strings.Repeat("命", 100)+"...", ds[0].Preview)
	assert.Empty(t, ds[0].Error)

	assert.False(t, ds[1].Success)
	assert.Equal(t, "backend down", ds[1].Error)
	assert.Equal(t, agent.FallbackText("用神分析"), ds[1].Preview)
}

func TestDiagnose_FetchError(t *testing.T) {
	fakes := newAnalyzers("a")
	e := New(&countingFetcher{err: &yuanfenju.DataFetchError{Attempts: 4, Err: yuanfenju.ErrTransport}}, nil, asAnalyzers(fakes))

	_, err := e.Diagnose(context.Background(), testUser())
	require.Error(t, err)
	assert.Zero(t, fakes[0].calls.Load())
}
