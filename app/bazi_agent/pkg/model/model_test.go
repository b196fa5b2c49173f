package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReportType(t *testing.T) {
	cases := map[string]ReportType{
		"":              ReportComprehensive,
		"career":        ReportCareer,
		" Relationship": ReportRelationship,
	}
	for in, want := range cases {
		got, err := ParseReportType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseReportType("wealth")
	assert.Error(t, err)
}

func TestGenderCode(t *testing.T) {
	assert.Equal(t, "1", GenderMale.Code())
	assert.Equal(t, "0", GenderFemale.Code())
	assert.False(t, Gender("M").Valid())
}

func TestUserInfo(t *testing.T) {
	u := UserInfo{BirthYear: 1990, BirthMonth: 5, BirthDay: 15, BirthHour: 4, BirthMinute: 5}
	assert.Equal(t, "1990-05-15 04:05", u.BirthString())
	assert.Equal(t, DefaultQuestion, u.QuestionOrDefault())
	u.Question = "  事业如何  "
	assert.Equal(t, "事业如何", u.QuestionOrDefault())
}

func TestFortuneDataset_PreservesOrder(t *testing.T) {
	raw := []byte(`{"zeta":1,"alpha":{"年柱":"庚午"}}`)
	ds := NewFortuneDataset(raw)
	raw[2] = 'X'

	assert.Equal(t, `{"zeta":1,"alpha":{"年柱":"庚午"}}`, string(ds.Bytes()))
	assert.Equal(t, "{\n  \"zeta\": 1,\n  \"alpha\": {\n    \"年柱\": \"庚午\"\n  }\n}", ds.Indent())

	b, err := json.Marshal(struct {
		Data FortuneDataset `json:"data"`
	}{ds})
	require.NoError(t, err)
	assert.Equal(t, `{"data":{"zeta":1,"alpha":{"年柱":"庚午"}}}`, string(b))

	assert.Equal(t, "{}", FortuneDataset{}.Indent())
	assert.True(t, FortuneDataset{}.IsZero())
}

func TestFortuneDataset_IndentUnescapes(t *testing.T) {
	ds := NewFortuneDataset([]byte(`{"bazi":"\u5e9a\u5348","n":1.50,"ok":true,"x":null,"arr":[1,"a\u0026b<c>",{"k":[]}],"e":{}}`))

	want := `{
  "bazi": "庚午",
  "n": 1.50,
  "ok": true,
  "x": null,
  "arr": [
    1,
    "a&b<c>",
    {
      "k": []
    }
  ],
  "e": {}
}`
	assert.Equal(t, want, ds.Indent())
	// 原始数据不变
	assert.Contains(t, string(ds.Bytes()), `\u5e9a`)
}

func TestFortuneDataset_IndentInvalidFallsBack(t *testing.T) {
	ds := NewFortuneDataset([]byte(`{"a":`))
	assert.Equal(t, `{"a":`, ds.Indent())
}

func TestSharedContext_CurrentTime(t *testing.T) {
	sc := SharedContext{Now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)}
	assert.Equal(t, "2026年01月02日 03:04:05", sc.CurrentTime())
}

func TestSections_OrderedJSON(t *testing.T) {
	s := Sections{
		{Key: "yongshen_analysis", Title: "用神喜忌分析", Content: "b", Agent: "yongshen"},
		{Key: "foundation_analysis", Title: "八字基础分析", Content: "a", Agent: "foundation"},
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"yongshen_analysis":{"title":"用神喜忌分析","content":"b","agent":"yongshen"},"foundation_analysis":{"title":"八字基础分析","content":"a","agent":"foundation"}}`, string(b))

	var back Sections
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s, back)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &back))
}

func TestPredictionReport_Section(t *testing.T) {
	r := PredictionReport{Sections: Sections{{Key: "solutions", Content: "x"}}}
	s, ok := r.Section("solutions")
	assert.True(t, ok)
	assert.Equal(t, "x", s.Content)
	_, ok = r.Section("consultation")
	assert.False(t, ok)
}
