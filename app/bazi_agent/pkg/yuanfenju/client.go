package yuanfenju

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/observe"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/validator"
)

const (
	fortunePath = "index.php/v1/Bazi/cesuan"
	pingPath    = "index.php/v1/Bazi/jingsuan"
	userAgent   = "AIBZ/1.0"
)

// Client 缘分居国学 API 客户端
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	rec        observe.Recorder
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRecorder 注入可观测性协作者
func WithRecorder(r observe.Recorder) Option {
	return func(c *Client) { c.rec = r }
}

// NewClient 创建一个新的缘分居客户端
func NewClient(cfg config.YuanfenjuConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: timeout},
		rec:        observe.Nop(),
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Form 构造运势测算请求表单
func (c *Client) Form(u model.UserInfo) url.Values {
	name := u.Name
	if name == "" {
		name = "用户"
	}
	v := url.Values{}
	v.Set("api_key", c.apiKey)
	v.Set("name", name)
	v.Set("sex", u.Gender.Code())
	v.Set("type", "1") // 公历
	v.Set("year", strconv.Itoa(u.BirthYear))
	v.Set("month", strconv.Itoa(u.BirthMonth))
	v.Set("day", strconv.Itoa(u.BirthDay))
	v.Set("hours", strconv.Itoa(u.BirthHour))
	v.Set("minute", strconv.Itoa(u.BirthMinute))
	v.Set("zhen", "1")
	v.Set("province", u.BirthProvince)
	v.Set("city", u.BirthCity)
	return v
}

// Budget 一次 Fetch 在全部重试与退避下的最长耗时，底层 http.Client 未设超时时返回 0
func (c *Client) Budget() time.Duration {
	if c.client == nil || c.client.Timeout <= 0 {
		return 0
	}
	total := time.Duration(c.maxRetries+1) * c.client.Timeout
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		total += c.retryDelay * time.Duration(attempt)
	}
	return total
}

// Fetch 获取运势数据（包含八字信息），失败时返回 *DataFetchError
func (c *Client) Fetch(ctx context.Context, u model.UserInfo, reportType model.ReportType) (model.FortuneDataset, error) {
	body, attempts, err := c.do(ctx, http.MethodPost, fortunePath, c.Form(u), string(reportType))
	var data json.RawMessage
	if err == nil {
		data, err = decodeData(body)
	}
	if err != nil {
		c.rec.Record(observe.Event{Name: observe.FetchFailure, ReportType: string(reportType), Attempt: attempts, Err: err})
		return model.FortuneDataset{}, &DataFetchError{Attempts: attempts, Err: err}
	}

	c.rec.Record(observe.Event{Name: observe.FetchSuccess, ReportType: string(reportType), Attempt: attempts, Length: len(data)})
	return model.NewFortuneDataset(data), nil
}

// decodeData 校验响应并取出 data 字段原文
func decodeData(body []byte) (json.RawMessage, error) {
	if err := checkResponse(body); err != nil {
		return nil, err
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return env.Data, nil
}

// Ping 测试接口连通性
func (c *Client) Ping(ctx context.Context) (bool, error) {
	body, _, err := c.do(ctx, http.MethodGet, pingPath, url.Values{"api_key": {c.apiKey}}, "ping")
	if err != nil {
		return false, err
	}
	var env struct {
		ErrCode *int `json:"errcode"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return env.ErrCode != nil && *env.ErrCode == 0, nil
}

func checkResponse(body []byte) error {
	if validator.ValidateResponseBytes(body) {
		return nil
	}
	var env struct {
		ErrCode any    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return fmt.Errorf("%w: errcode=%v errmsg=%s", ErrInvalidResponse, env.ErrCode, env.ErrMsg)
}

// do 发送请求，对可重试错误按 delay = base * attempt 线性退避
func (c *Client) do(ctx context.Context, method, path string, form url.Values, tag string) ([]byte, int, error) {
	var lastErr error
	total := c.maxRetries + 1
	for attempt := 1; attempt <= total; attempt++ {
		start := time.Now()
		body, err := c.once(ctx, method, path, form)
		c.rec.Record(observe.Event{
			Name:       observe.FetchAttempt,
			Message:    fmt.Sprintf("缘分居API请求 %s (尝试 %d/%d)", path, attempt, total),
			ReportType: tag,
			Attempt:    attempt,
			Duration:   time.Since(start),
			Err:        err,
		})
		if err == nil {
			return body, attempt, nil
		}
		lastErr = err
		if !retryable(err) || attempt == total {
			return nil, attempt, lastErr
		}
		if err := c.sleep(ctx, c.retryDelay*time.Duration(attempt)); err != nil {
			return nil, attempt, err
		}
	}
	return nil, total, lastErr
}

func (c *Client) once(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	u := c.baseURL + "/" + path

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, u+"?"+form.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body failed: %v", ErrTransport, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, Body: truncate(string(body), 256)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
