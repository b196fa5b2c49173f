package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
)

// responseSchema 缘分居响应结构约束：errcode 为 0，data 为对象
const responseSchema = `{
	"type": "object",
	"required": ["errcode", "data"],
	"properties": {
		"errcode": {"type": "integer", "enum": [0]},
		"data": {"type": "object"}
	}
}`

var compiledResponseSchema = mustSchema(responseSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid response schema: %v", err))
	}
	return schema
}

// ValidateResponse 校验已解码的响应结构，无副作用
func ValidateResponse(raw any) bool {
	return validate(gojsonschema.NewGoLoader(raw))
}

// ValidateResponseBytes 校验原始响应体
func ValidateResponseBytes(body []byte) bool {
	return validate(gojsonschema.NewBytesLoader(body))
}

func validate(doc gojsonschema.JSONLoader) bool {
	result, err := compiledResponseSchema.Validate(doc)
	if err != nil {
		return false
	}
	return result.Valid()
}

var nameRe = regexp.MustCompile(`^[\p{Han}a-zA-Z\s]+$`)

// ValidateUserInfo 校验用户信息，返回全部错误信息
func ValidateUserInfo(u model.UserInfo, now time.Time) []string {
	var errs []string

	name := strings.TrimSpace(u.Name)
	switch {
	case name == "":
		errs = append(errs, "姓名不能为空")
	case utf8.RuneCountInString(name) > 20:
		errs = append(errs, "姓名长度不能超过20个字符")
	case !nameRe.MatchString(name):
		errs = append(errs, "姓名只能包含中文、英文字母和空格")
	}

	if !u.Gender.Valid() {
		errs = append(errs, "请选择正确的性别")
	}

	if u.BirthYear < 1900 || u.BirthYear > now.Year() {
		errs = append(errs, fmt.Sprintf("出生年份必须在1900-%d之间", now.Year()))
	}
	if u.BirthMonth < 1 || u.BirthMonth > 12 {
		errs = append(errs, "出生月份必须在1-12之间")
	}
	if u.BirthDay < 1 || u.BirthDay > 31 {
		errs = append(errs, "出生日期必须在1-31之间")
	}
	if u.BirthHour < 0 || u.BirthHour > 23 {
		errs = append(errs, "出生小时必须在0-23之间")
	}
	if u.BirthMinute < 0 || u.BirthMinute > 59 {
		errs = append(errs, "出生分钟必须在0-59之间")
	}
	if !calendarValid(u) {
		errs = append(errs, "请输入有效的出生日期时间")
	}

	errs = append(errs, checkPlace("出生省份", u.BirthProvince)...)
	errs = append(errs, checkPlace("出生城市", u.BirthCity)...)

	if utf8.RuneCountInString(u.Question) > 500 {
		errs = append(errs, "咨询问题长度不能超过500个字符")
	}
	return errs
}

// calendarValid time.Date 会规范化越界值，回读不一致即为无效日期
func calendarValid(u model.UserInfo) bool {
	t := time.Date(u.BirthYear, time.Month(u.BirthMonth), u.BirthDay, u.BirthHour, u.BirthMinute, 0, 0, time.UTC)
	return t.Year() == u.BirthYear && int(t.Month()) == u.BirthMonth && t.Day() == u.BirthDay &&
		t.Hour() == u.BirthHour && t.Minute() == u.BirthMinute
}

func checkPlace(label, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return []string{label + "不能为空"}
	}
	if utf8.RuneCountInString(v) > 50 {
		return []string{label + "长度不能超过50个字符"}
	}
	return nil
}
