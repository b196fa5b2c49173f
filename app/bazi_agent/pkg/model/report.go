package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ReportInfo 报告元信息
type ReportInfo struct {
	Title           string     `json:"title"`
	GeneratedTime   string     `json:"generated_time"`
	ServiceProvider string     `json:"service_provider"`
	Description     string     `json:"description"`
	UserName        string     `json:"user_name,omitempty"`
	ReportType      ReportType `json:"report_type,omitempty"`
}

// Section 报告中的一个分析部分
type Section struct {
	Key     string `json:"-"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Agent   string `json:"agent"`
}

// Sections 有序的 section-key → Section 映射，序列化为保持顺序的 JSON 对象
type Sections []Section

// MarshalJSON 按顺序输出对象
func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sec.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(sec)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按对象中的出现顺序还原
func (s *Sections) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sections: expected object, got %v", tok)
	}
	out := Sections{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("sections: unexpected key %v", tok)
		}
		var sec Section
		if err := dec.Decode(&sec); err != nil {
			return fmt.Errorf("sections: decode %s: %w", key, err)
		}
		sec.Key = key
		out = append(out, sec)
	}
	*s = out
	return nil
}

// Summary 报告统计
type Summary struct {
	SectionsCount      int      `json:"sections_count"`
	TotalContentLength int      `json:"total_content_length"`
	AgentsUsed         []string `json:"agents_used"`
}

// PredictionReport 一次编排产出的完整报告，创建后不再修改
type PredictionReport struct {
	Info        ReportInfo `json:"report_info"`
	Sections    Sections   `json:"analysis_sections"`
	Summary     Summary    `json:"summary"`
	GeneratedAt time.Time  `json:"-"`
}

// Section 按 key 查找分析部分
func (r *PredictionReport) Section(key string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}
