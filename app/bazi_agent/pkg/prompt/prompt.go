// Package prompt 提供按名称读取的提示词模板。
// 内置模板随二进制发布，可被配置目录下的同名 .txt 文件覆盖。
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
)

//go:embed templates/*.txt
var builtin embed.FS

const (
	// CommonTemplate 拼接在每个专门模板之后的通用模板
	CommonTemplate = "common_agent_prompt"
	// FallbackInstruction 模板缺失时使用的通用指令
	FallbackInstruction = "请提供详细的分析和建议。"
)

// Store 按名称读取模板
type Store interface {
	Get(name string) (string, bool)
}

// Library 内置模板 + 目录覆盖，构造后只读
type Library struct {
	templates map[string]string
}

// NewLibrary 加载内置模板，dir 非空时用目录中的文件覆盖
func NewLibrary(dir string) (*Library, error) {
	l := &Library{templates: make(map[string]string)}
	sub, err := fs.Sub(builtin, "templates")
	if err != nil {
		return nil, err
	}
	if err := l.load(sub); err != nil {
		return nil, fmt.Errorf("load builtin prompts: %w", err)
	}
	if dir != "" {
		if err := l.load(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
		}
	}
	return l, nil
}

// NewMapStore 直接使用给定模板，便于测试
func NewMapStore(m map[string]string) *Library {
	l := &Library{templates: make(map[string]string, len(m))}
	for k, v := range m {
		l.templates[k] = v
	}
	return l
}

func (l *Library) load(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		b, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return err
		}
		l.templates[strings.TrimSuffix(e.Name(), ".txt")] = strings.TrimSpace(string(b))
	}
	return nil
}

// Get 实现 Store
func (l *Library) Get(name string) (string, bool) {
	s, ok := l.templates[strings.TrimSuffix(name, ".txt")]
	return s, ok
}

// Compose 专门模板 + 通用模板；缺失的部分以通用指令代替
func Compose(s Store, name string) string {
	return lookup(s, name) + "\n\n" + lookup(s, CommonTemplate)
}

func lookup(s Store, name string) string {
	if s == nil {
		return FallbackInstruction
	}
	if v, ok := s.Get(name); ok && v != "" {
		return v
	}
	return FallbackInstruction
}

// Focus 报告类型对应的侧重说明
func Focus(s Store, rt model.ReportType) string {
	if rt == "" {
		rt = model.ReportComprehensive
	}
	return lookup(s, "focus_"+string(rt))
}
