package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
)

const htmlTpl = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{ .Info.Title }}</title>
    <style>
        :root {
            --primary-color: #b45309;
            --bg-color: #fdfaf3;
            --card-bg: #ffffff;
            --text-main: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e7e0d0;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            background-color: var(--bg-color);
            color: var(--text-main);
            line-height: 1.7;
            margin: 0;
            padding: 20px;
        }
        .container { max-width: 860px; margin: 0 auto; }
        header { text-align: center; margin-bottom: 32px; padding: 20px 0; }
        h1 { font-size: 2rem; margin: 0 0 10px 0; }
        .meta { color: var(--text-secondary); }
        .desc { margin-top: 8px; color: var(--text-secondary); font-size: 0.95rem; }
        .section-card {
            background: var(--card-bg);
            border-radius: 12px;
            padding: 24px;
            margin-bottom: 24px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.05);
            border: 1px solid var(--border-color);
            border-left: 4px solid var(--primary-color);
        }
        .section-title { font-size: 1.4rem; font-weight: 700; margin-bottom: 12px; }
        .summary { text-align: center; color: var(--text-secondary); font-size: 0.9rem; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>{{ .Info.Title }}</h1>
            <div class="meta">{{ if .Info.UserName }}{{ .Info.UserName }} • {{ end }}{{ .Info.GeneratedTime }} • {{ .Info.ServiceProvider }}</div>
            <div class="desc">{{ .Info.Description }}</div>
        </header>

        {{ range .Sections }}
        <div class="section-card" id="{{ .Key }}">
            <div class="section-title">{{ .Title }}</div>
            <div class="markdown-content">{{ .Body }}</div>
        </div>
        {{ end }}

        <div class="summary">共 {{ .Summary.SectionsCount }} 个分析部分 • {{ .Summary.TotalContentLength }} 字</div>
    </div>
</body>
</html>
`

var (
	page     = template.Must(template.New("report").Parse(htmlTpl))
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

type sectionView struct {
	Key   string
	Title string
	Body  template.HTML
}

type pageView struct {
	Info     model.ReportInfo
	Sections []sectionView
	Summary  model.Summary
}

// RenderHTML 将报告渲染为 HTML 页面。
// 正文在服务端按 Markdown 渲染并经过白名单过滤，模型输出中的脚本与事件属性不会进入页面。
func RenderHTML(w io.Writer, r *model.PredictionReport) error {
	if r == nil {
		return errors.New("nil report")
	}
	v := pageView{Info: r.Info, Summary: r.Summary, Sections: make([]sectionView, 0, len(r.Sections))}
	for _, s := range r.Sections {
		body, err := renderMarkdown(s.Content)
		if err != nil {
			return fmt.Errorf("render section %s: %w", s.Key, err)
		}
		v.Sections = append(v.Sections, sectionView{Key: s.Key, Title: s.Title, Body: body})
	}
	return page.Execute(w, v)
}

func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}
