// Package report 将各智能体的分析结果组装成最终报告
package report

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/agent"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
)

const (
	titlePrefix     = "玄学AI智能体 - "
	ServiceProvider = "玄学AI智能体服务"
	Description     = "本分析报告由多个专业智能体协同生成，为您提供全方位的命理指导。"
)

var titles = map[model.ReportType]string{
	model.ReportComprehensive: titlePrefix + "综合命理分析报告",
	model.ReportCareer:        titlePrefix + "事业发展分析报告",
	model.ReportRelationship:  titlePrefix + "感情婚姻分析报告",
}

// Title 报告类型对应的标题
func Title(rt model.ReportType) string {
	if t, ok := titles[rt]; ok {
		return t
	}
	return titles[model.ReportComprehensive]
}

// Result 一个已调度智能体的产出
type Result struct {
	Spec agent.Spec
	Text string
}

// Meta 报告元信息的输入
type Meta struct {
	ReportType model.ReportType
	UserName   string
	Now        time.Time
}

// Assemble 组装报告。纯函数：相同输入得到相同报告。
// 空白内容的 section 被丢弃；agents_used 记录所有被调度的智能体。
func Assemble(results []Result, meta Meta) *model.PredictionReport {
	r := &model.PredictionReport{
		Info: model.ReportInfo{
			Title:           Title(meta.ReportType),
			GeneratedTime:   meta.Now.Format(model.TimeLayout),
			ServiceProvider: ServiceProvider,
			Description:     Description,
			UserName:        meta.UserName,
			ReportType:      meta.ReportType,
		},
		Sections:    model.Sections{},
		GeneratedAt: meta.Now,
	}

	used := make([]string, 0, len(results))
	total := 0
	for _, res := range results {
		used = append(used, res.Spec.ID)

		content := strings.TrimSpace(res.Text)
		if content == "" {
			continue
		}
		r.Sections = append(r.Sections, model.Section{
			Key:     res.Spec.SectionKey,
			Title:   res.Spec.SectionTitle,
			Content: content,
			Agent:   res.Spec.ID,
		})
		total += utf8.RuneCountInString(content)
	}

	r.Summary = model.Summary{
		SectionsCount:      len(r.Sections),
		TotalContentLength: total,
		AgentsUsed:         used,
	}
	return r
}
