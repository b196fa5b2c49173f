package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Gender 性别
type Gender string

const (
	GenderMale   Gender = "男"
	GenderFemale Gender = "女"
)

// Valid 是否为可接受的性别取值
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Code 缘分居接口使用的性别编码：0 女，1 男
func (g Gender) Code() string {
	if g == GenderFemale {
		return "0"
	}
	return "1"
}

// ReportType 报告类型
type ReportType string

const (
	ReportComprehensive ReportType = "comprehensive"
	ReportCareer        ReportType = "career"
	ReportRelationship  ReportType = "relationship"
)

// Valid 是否为已知报告类型
func (t ReportType) Valid() bool {
	switch t {
	case ReportComprehensive, ReportCareer, ReportRelationship:
		return true
	}
	return false
}

// ParseReportType 解析报告类型，空串视为综合报告
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return ReportComprehensive, nil
	}
	if !t.Valid() {
		return "", fmt.Errorf("unknown report type: %s", s)
	}
	return t, nil
}

// UserInfo 用户出生信息，由表单层构造后按值传入
type UserInfo struct {
	Name          string `json:"name"`
	Gender        Gender `json:"gender"`
	BirthYear     int    `json:"birth_year"`
	BirthMonth    int    `json:"birth_month"`
	BirthDay      int    `json:"birth_day"`
	BirthHour     int    `json:"birth_hour"`
	BirthMinute   int    `json:"birth_minute"`
	BirthProvince string `json:"birth_province"`
	BirthCity     string `json:"birth_city"`
	Question      string `json:"question,omitempty"`
}

// DefaultQuestion 用户未填写咨询问题时使用
const DefaultQuestion = "请为我进行全面的命理分析"

// BirthTime 出生时间（本地时区）
func (u UserInfo) BirthTime() time.Time {
	return time.Date(u.BirthYear, time.Month(u.BirthMonth), u.BirthDay, u.BirthHour, u.BirthMinute, 0, 0, time.Local)
}

// BirthString 格式化的出生日期时间，例如 1990-05-15 14:30
func (u UserInfo) BirthString() string {
	return fmt.Sprintf("%d-%02d-%02d %02d:%02d", u.BirthYear, u.BirthMonth, u.BirthDay, u.BirthHour, u.BirthMinute)
}

// QuestionOrDefault 返回咨询问题，为空时返回通用问题
func (u UserInfo) QuestionOrDefault() string {
	if q := strings.TrimSpace(u.Question); q != "" {
		return q
	}
	return DefaultQuestion
}

// FortuneDataset 数据提供方返回的命理基础数据（data 字段原文）。
// 核心逻辑不解析其内容，只整体转发给各智能体。
type FortuneDataset struct {
	raw json.RawMessage
}

// NewFortuneDataset 拷贝原始 JSON 构造数据集
func NewFortuneDataset(raw []byte) FortuneDataset {
	return FortuneDataset{raw: bytes.Clone(raw)}
}

// IsZero 数据集是否为空
func (d FortuneDataset) IsZero() bool {
	return len(d.raw) == 0
}

// Bytes 返回原始 JSON 的副本
func (d FortuneDataset) Bytes() []byte {
	return bytes.Clone(d.raw)
}

// Indent 缩进格式化，保持字段原有顺序，\uXXXX 转义还原为原字符
func (d FortuneDataset) Indent() string {
	if d.IsZero() {
		return "{}"
	}
	compact, err := unescapeJSON(d.raw)
	if err != nil {
		return string(d.raw)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return string(d.raw)
	}
	return buf.String()
}

type jsonFrame struct {
	object bool
	n      int
}

// unescapeJSON 按 Token 流重写 JSON：字符串重新编码且不转义非 ASCII 与 HTML 字符，数字保留原文
func unescapeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var (
		out   bytes.Buffer
		stack []jsonFrame
	)
	sep := func() {
		if len(stack) == 0 {
			return
		}
		top := &stack[len(stack)-1]
		switch {
		case top.object && top.n%2 == 1:
			out.WriteByte(':')
		case top.n > 0:
			out.WriteByte(',')
		}
		top.n++
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{', '[':
				sep()
				stack = append(stack, jsonFrame{object: v == '{'})
			default:
				stack = stack[:len(stack)-1]
			}
			out.WriteRune(rune(v))
		case string:
			sep()
			if err := writeJSONString(&out, v); err != nil {
				return nil, err
			}
		case json.Number:
			sep()
			out.WriteString(v.String())
		case bool:
			sep()
			out.WriteString(strconv.FormatBool(v))
		case nil:
			sep()
			out.WriteString("null")
		}
	}
	if len(stack) != 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return out.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode 追加换行
	buf.Truncate(buf.Len() - 1)
	return nil
}

// MarshalJSON 原样输出
func (d FortuneDataset) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("{}"), nil
	}
	return d.Bytes(), nil
}

// UnmarshalJSON 原样保存
func (d *FortuneDataset) UnmarshalJSON(b []byte) error {
	d.raw = bytes.Clone(b)
	return nil
}

// TimeLayout 报告与提示词中使用的时间格式
const TimeLayout = "2006年01月02日 15:04:05"

// SharedContext 单次请求内所有智能体共享的只读上下文
type SharedContext struct {
	User       UserInfo
	Dataset    FortuneDataset
	ReportType ReportType
	Now        time.Time
}

// CurrentTime 当前时间的展示格式
func (c SharedContext) CurrentTime() string {
	return c.Now.Format(TimeLayout)
}

// AgentOutcome 单个智能体的执行结果，失败时 Text 为兜底文案
type AgentOutcome struct {
	AgentID  string
	Text     string
	Err      error
	Duration time.Duration
}

// Failed 是否降级为兜底文案
func (o AgentOutcome) Failed() bool {
	return o.Err != nil
}
