package book

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// 数据来源标签
const (
	SourceGoogleBooks = "GOOGLE_BOOKS"
	SourceOpenLibrary = "OPEN_LIBRARY"
	SourceNYT         = "NYT"
	SourceManual      = "MANUAL"
)

// Book 规范图书（聚合根）
// 设计说明:
// 1. 一行对应一个真实存在、可寻址的图书版本（edition）
// 2. ID是UUIDv7字符串：全局唯一、按创建时间单调有序、生成后不可变
// 3. ISBN13/ISBN10是清洗后的自然键，可以为空，非空时全局唯一
// 4. Slug生成后永不重新计算，保证对外链接稳定
type Book struct {
	ID            string
	ISBN13        string
	ISBN10        string
	Title         string
	Subtitle      string
	Authors       []string // 有序
	Categories    []string // 集合
	Publisher     string
	PublishedDate string // 数据源原样格式：2008 / 2008-03 / 2008-03-15
	Language      string
	PageCount     int
	Description   string
	Slug          string
	Source        string // 首次创建该记录的数据源
	CoverImageURL string // 规范封面（由ImageLinks按排名计算）
	ImageLinks    []ImageLink
	Dimensions    *Dimensions
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Dimensions 物理尺寸（数据源给出的字符串，如"24.00 cm"）
type Dimensions struct {
	Height    string
	Width     string
	Thickness string
}

// IsEmpty 是否没有任何尺寸数据
func (d Dimensions) IsEmpty() bool {
	return d.Height == "" && d.Width == "" && d.Thickness == ""
}

// Merge 逐字段合并，空值不覆盖已有值
func (d Dimensions) Merge(in Dimensions) (Dimensions, bool) {
	changed := false
	if in.Height != "" && in.Height != d.Height {
		d.Height, changed = in.Height, true
	}
	if in.Width != "" && in.Width != d.Width {
		d.Width, changed = in.Width, true
	}
	if in.Thickness != "" && in.Thickness != d.Thickness {
		d.Thickness, changed = in.Thickness, true
	}
	return d, changed
}

// Identifier 数据源原始的行业标识（如Google Books的industryIdentifiers）
type Identifier struct {
	Type  string // ISBN_13 / ISBN_10 / OTHER
	Value string
}

// ExternalRef 外部数据源的记录标识
type ExternalRef struct {
	Source string
	ID     string
}

// NormalizedBook 数据源适配器输出的统一格式，是Upsert的输入
type NormalizedBook struct {
	Title         string
	Subtitle      string
	Authors       []string
	Categories    []string
	Publisher     string
	PublishedDate string
	Language      string
	PageCount     int
	Description   string
	ISBN13        string
	ISBN10        string
	Source        string
	ExternalID    string
	ExtraRefs     []ExternalRef // 同一次数据中携带的其它数据源标识
	Identifiers   []Identifier
	ImageLinks    []ImageLink
	Dimensions    *Dimensions
}

// Normalize 清洗输入：去空白、清洗ISBN、从Identifiers补全ISBN、作者去重保序、分类去重
func (n NormalizedBook) Normalize() NormalizedBook {
	out := n
	out.Title = strings.TrimSpace(n.Title)
	out.Subtitle = strings.TrimSpace(n.Subtitle)
	out.Publisher = strings.TrimSpace(n.Publisher)
	out.PublishedDate = strings.TrimSpace(n.PublishedDate)
	out.Language = strings.ToLower(strings.TrimSpace(n.Language))
	out.Source = strings.ToUpper(strings.TrimSpace(n.Source))
	out.ExternalID = strings.TrimSpace(n.ExternalID)
	if out.PageCount < 0 {
		out.PageCount = 0
	}

	out.ISBN13 = SanitizeISBN(n.ISBN13)
	out.ISBN10 = SanitizeISBN(n.ISBN10)
	// 数据源偶尔把10位ISBN填进13位字段
	if len(out.ISBN13) == 10 && out.ISBN10 == "" {
		out.ISBN10, out.ISBN13 = out.ISBN13, ""
	}
	// 长度不对的ISBN既不能加锁也放不进列宽，直接丢弃
	if len(out.ISBN13) != 13 {
		out.ISBN13 = ""
	}
	if len(out.ISBN10) != 10 {
		out.ISBN10 = ""
	}
	for _, id := range n.Identifiers {
		v := SanitizeISBN(id.Value)
		switch strings.ToUpper(id.Type) {
		case "ISBN_13", "ISBN13":
			if out.ISBN13 == "" && len(v) == 13 {
				out.ISBN13 = v
			}
		case "ISBN_10", "ISBN10":
			if out.ISBN10 == "" && len(v) == 10 {
				out.ISBN10 = v
			}
		}
	}

	out.Authors = uniqueOrdered(n.Authors, strings.TrimSpace)
	out.Categories = uniqueOrdered(n.Categories, strings.TrimSpace)

	links := make([]ImageLink, 0, len(n.ImageLinks))
	for _, l := range n.ImageLinks {
		l.URL = strings.TrimSpace(l.URL)
		if l.URL == "" || l.Type == "" {
			continue
		}
		links = append(links, l)
	}
	out.ImageLinks = links
	return out
}

// InvalidISBNs 清洗后长度不合法、会被Normalize丢弃的原始ISBN
func (n NormalizedBook) InvalidISBNs() []string {
	var bad []string
	check := func(raw string, lengths ...int) {
		s := SanitizeISBN(raw)
		if s == "" {
			return
		}
		for _, l := range lengths {
			if len(s) == l {
				return
			}
		}
		bad = append(bad, raw)
	}
	check(n.ISBN13, 13, 10)
	check(n.ISBN10, 10)
	for _, id := range n.Identifiers {
		switch strings.ToUpper(id.Type) {
		case "ISBN_13", "ISBN13":
			check(id.Value, 13)
		case "ISBN_10", "ISBN10":
			check(id.Value, 10)
		}
	}
	return bad
}

// Refs 需要写入外部标识索引的全部(source, id)
func (n NormalizedBook) Refs() []ExternalRef {
	refs := make([]ExternalRef, 0, 1+len(n.ExtraRefs))
	seen := make(map[string]struct{})
	add := func(r ExternalRef) {
		r.Source = strings.ToUpper(strings.TrimSpace(r.Source))
		r.ID = strings.TrimSpace(r.ID)
		if r.Source == "" || r.ID == "" {
			return
		}
		if _, ok := seen[r.Source]; ok {
			return
		}
		seen[r.Source] = struct{}{}
		refs = append(refs, r)
	}
	add(ExternalRef{Source: n.Source, ID: n.ExternalID})
	for _, r := range n.ExtraRefs {
		add(r)
	}
	return refs
}

// HasIdentity 是否携带任何可用于加锁的标识
func (n NormalizedBook) HasIdentity() bool {
	_, ok := DeriveLockKey(n.ISBN13, n.ISBN10, n.Source, n.ExternalID)
	return ok
}

// newBookFrom 由输入创建新图书实体
func newBookFrom(id, slug string, in *NormalizedBook, now time.Time) *Book {
	return &Book{
		ID:            id,
		ISBN13:        in.ISBN13,
		ISBN10:        in.ISBN10,
		Title:         in.Title,
		Subtitle:      in.Subtitle,
		Authors:       in.Authors,
		Categories:    in.Categories,
		Publisher:     in.Publisher,
		PublishedDate: in.PublishedDate,
		Language:      in.Language,
		PageCount:     in.PageCount,
		Description:   in.Description,
		Slug:          slug,
		Source:        in.Source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MergeCore 合并核心字段（新鲜度保护）
// 规则：
// 1. 输入值存在（非空、非零）才覆盖，绝不用空值覆盖已有值
// 2. 描述只做"非空白"判断，更长描述优先由上层的补全流程负责
// 3. ISBN是自然键，只在原值为空时补写，由调用方保证不与其它记录冲突
// 4. Slug、ID、Source不在这里变更
func (b *Book) MergeCore(in *NormalizedBook) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}

	set(&b.Title, in.Title)
	set(&b.Subtitle, in.Subtitle)
	set(&b.Publisher, in.Publisher)
	set(&b.PublishedDate, in.PublishedDate)
	set(&b.Language, in.Language)
	if strings.TrimSpace(in.Description) != "" && b.Description != in.Description {
		b.Description = in.Description
		changed = true
	}
	if in.PageCount > 0 && b.PageCount != in.PageCount {
		b.PageCount = in.PageCount
		changed = true
	}
	return changed
}

// UpsertResult Upsert结果
type UpsertResult struct {
	BookID string
	Slug   string
	IsNew  bool
}

// NewID 生成UUIDv7标识
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func uniqueOrdered(in []string, clean func(string) string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = clean(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
