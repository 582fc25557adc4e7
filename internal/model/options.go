package model

import (
	"encoding/json"
	"strings"
)

// isUnset 原始参数中表示“未设置”的哨兵值
func isUnset(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "no", "false":
		return true
	}
	return false
}

// OptString 显式可选字符串，替代 "no"/"false" 之类的哨兵值
type OptString struct {
	value string
	set   bool
}

// Some 构造有值的 OptString
func Some(v string) OptString {
	return OptString{value: v, set: true}
}

// None 构造空 OptString
func None() OptString {
	return OptString{}
}

// ParseOpt 解析边界参数：""、no、false（大小写不敏感）视为 None
func ParseOpt(raw string) OptString {
	if isUnset(raw) {
		return None()
	}
	return Some(strings.TrimSpace(raw))
}

// Get 返回值与是否存在
func (o OptString) Get() (string, bool) {
	return o.value, o.set
}

// IsSome 是否有值
func (o OptString) IsSome() bool {
	return o.set
}

// OrElse 无值时返回 def
func (o OptString) OrElse(def string) string {
	if o.set {
		return o.value
	}
	return def
}

func (o OptString) String() string {
	return o.OrElse("")
}

// MarshalJSON None 输出为 null
func (o OptString) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON 接受字符串（按哨兵规则解析）或 null
func (o *OptString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = None()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*o = ParseOpt(s)
	return nil
}

// SearchKind 文件搜索目标类型
type SearchKind int

const (
	SearchSkip SearchKind = iota
	SearchClean
	SearchFile
)

// SearchTarget 扫描 flash 时的搜索目标
type SearchTarget struct {
	Kind SearchKind
	Name string
}

// SearchFor 搜索指定文件
func SearchFor(name string) SearchTarget {
	return SearchTarget{Kind: SearchFile, Name: strings.TrimSpace(name)}
}

// ParseSearchTarget ""、no、false、skip 表示跳过；clean 表示清理标记（同样不搜索）；其余为文件名
func ParseSearchTarget(raw string) SearchTarget {
	v := strings.TrimSpace(raw)
	if isUnset(v) || strings.EqualFold(v, "skip") {
		return SearchTarget{Kind: SearchSkip}
	}
	if strings.EqualFold(v, "clean") {
		return SearchTarget{Kind: SearchClean}
	}
	return SearchFor(v)
}

// Label 返回报告中的 searching 字段
func (t SearchTarget) Label() string {
	switch t.Kind {
	case SearchClean:
		return "clean"
	case SearchFile:
		return t.Name
	}
	return "skip"
}

// BootKind boot 修改目标类型
type BootKind int

const (
	BootNoChange BootKind = iota
	BootClear
	BootImage
)

// BootTarget boot 修改目标
type BootTarget struct {
	Kind  BootKind
	Image string
}

// BootWith 使用指定镜像
func BootWith(image string) BootTarget {
	return BootTarget{Kind: BootImage, Image: strings.TrimSpace(image)}
}

// ParseBootTarget ""、no、false 表示不修改；clean、clear 表示清空；其余为镜像名
func ParseBootTarget(raw string) BootTarget {
	v := strings.TrimSpace(raw)
	if isUnset(v) {
		return BootTarget{Kind: BootNoChange}
	}
	if strings.EqualFold(v, "clean") || strings.EqualFold(v, "clear") {
		return BootTarget{Kind: BootClear}
	}
	return BootWith(v)
}

// Label 用于日志
func (t BootTarget) Label() string {
	switch t.Kind {
	case BootClear:
		return "clean"
	case BootImage:
		return t.Image
	}
	return "no"
}
