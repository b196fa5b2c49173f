package agent

import "fmt"

// Variant 智能体种类，集合封闭，在加载配置时选定
type Variant int

const (
	Foundation Variant = iota
	Yongshen
	Fortune
	LifeAspects
	Solution
	Consultation
)

// Spec 智能体静态配置，进程启动时确定，运行期只读
type Spec struct {
	ID           string // 智能体标识
	Title        string // 展示名称，也用于兜底文案
	SectionKey   string // 报告中的 section key
	SectionTitle string // 报告中的 section 标题
	Template     string // 提示词模板名称
}

var specs = [...]Spec{
	Foundation:   {ID: "foundation", Title: "八字基础分析", SectionKey: "foundation_analysis", SectionTitle: "八字基础分析", Template: "foundation_agent_prompt"},
	Yongshen:     {ID: "yongshen", Title: "用神分析", SectionKey: "yongshen_analysis", SectionTitle: "用神喜忌分析", Template: "yongshen_agent_prompt"},
	Fortune:      {ID: "fortune", Title: "大运流年分析", SectionKey: "fortune_prediction", SectionTitle: "大运流年预测", Template: "fortune_agent_prompt"},
	LifeAspects:  {ID: "life_aspects", Title: "人生各方面分析", SectionKey: "life_aspects", SectionTitle: "人生各方面详解", Template: "life_aspects_agent_prompt"},
	Solution:     {ID: "solution", Title: "解决方案", SectionKey: "solutions", SectionTitle: "专业解决方案", Template: "solution_agent_prompt"},
	Consultation: {ID: "consultation", Title: "咨询回答", SectionKey: "consultation", SectionTitle: "咨询问题回答", Template: "consultation_agent_prompt"},
}

// Spec 返回该种类的静态配置
func (v Variant) Spec() Spec {
	if v < 0 || int(v) >= len(specs) {
		return Spec{ID: fmt.Sprintf("variant_%d", int(v)), Title: "未知智能体"}
	}
	return specs[v]
}

func (v Variant) String() string { return v.Spec().ID }

// All 全部种类，顺序即报告中的 section 顺序
func All() []Variant {
	out := make([]Variant, len(specs))
	for i := range specs {
		out[i] = Variant(i)
	}
	return out
}

// Specs 全部静态配置
func Specs() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs[:])
	return out
}

// ParseVariant 由 ID 解析种类
func ParseVariant(id string) (Variant, error) {
	for i, s := range specs {
		if s.ID == id {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("unknown agent: %s", id)
}

// Select 按配置选出启用的种类，保持目录顺序；enabled 为空时返回全部
func Select(enabled []string) ([]Variant, error) {
	if len(enabled) == 0 {
		return All(), nil
	}
	want := make(map[Variant]bool, len(enabled))
	for _, id := range enabled {
		v, err := ParseVariant(id)
		if err != nil {
			return nil, err
		}
		want[v] = true
	}
	var out []Variant
	for _, v := range All() {
		if want[v] {
			out = append(out, v)
		}
	}
	return out, nil
}
