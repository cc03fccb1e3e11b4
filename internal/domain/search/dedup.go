// Package search 搜索结果去重：把按版本返回的命中折叠为按作品的结果
package search

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/pkg/metrics"
)

// 命中类型
const (
	MatchTitle     = "title"
	MatchAuthor    = "author"
	MatchISBN      = "isbn"
	MatchPublisher = "publisher"
)

// SearchHit 单次查询中一个图书版本的只读投影，不落库
type SearchHit struct {
	BookID       string
	Title        string
	Authors      []string
	Slug         string
	ISBN13       string
	CoverURL     string
	Score        float64
	MatchType    string
	EditionCount int
	ClusterID    string
	Sources      []string // 已有映射的数据源
}

// HasSource 是否已有该数据源的映射
func (h SearchHit) HasSource(source string) bool {
	for _, s := range h.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// Membership 图书的作品簇归属
// Primary是显式主版本，没有时为按排序规则计算出的主版本
type Membership struct {
	ClusterID   string
	MemberCount int
	Primary     book.ClusterMember
}

// LexicalSearcher 词法检索，返回按相关度降序的命中
type LexicalSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// ClusterLookup 批量查询作品簇归属，不在任何簇中的图书不出现在结果里
type ClusterLookup interface {
	Memberships(ctx context.Context, bookIDs []string) (map[string]Membership, error)
}

// Deduplicator 两轮去重
// 第一轮：同一作品簇的命中合并到主版本，版本数取簇成员数与累计值的最大值
// 第二轮：仍未聚类的命中按"标题::第一作者"归一化键合并，版本数求和
// 输出保持首次出现的顺序，不按合并后的分数重排
type Deduplicator struct {
	clusters ClusterLookup
	logger   *zap.Logger
}

// NewDeduplicator 创建去重器
func NewDeduplicator(clusters ClusterLookup, logger *zap.Logger) *Deduplicator {
	return &Deduplicator{clusters: clusters, logger: logger}
}

// Deduplicate 作品簇查询失败时降级为只做第二轮，不会让整个搜索失败
func (d *Deduplicator) Deduplicate(ctx context.Context, hits []SearchHit) []SearchHit {
	if len(hits) == 0 {
		return hits
	}

	memberships := map[string]Membership{}
	if d.clusters != nil {
		ids := make([]string, 0, len(hits))
		for _, h := range hits {
			ids = append(ids, h.BookID)
		}
		m, err := d.clusters.Memberships(ctx, ids)
		if err != nil {
			d.logger.Warn("cluster lookup failed, falling back to title/author dedup",
				zap.Int("hits", len(hits)), zap.Error(err))
			metrics.IncDedupDegraded()
		} else {
			memberships = m
		}
	}

	merged := mergeClusters(hits, memberships)
	return mergeTitleAuthor(merged)
}

// mergeClusters 第一轮
func mergeClusters(hits []SearchHit, memberships map[string]Membership) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	index := make(map[string]int, len(hits))
	merges := 0

	for _, h := range hits {
		h = withDefaults(h)
		m, clustered := memberships[h.BookID]
		clustered = clustered && m.Primary.BookID != ""
		key := h.BookID
		if clustered {
			key = m.Primary.BookID
		}

		i, seen := index[key]
		if !seen {
			if clustered {
				h = asPrimary(h, m)
			}
			index[key] = len(out)
			out = append(out, h)
			continue
		}

		merges++
		cur := &out[i]
		if h.Score > cur.Score {
			cur.Score = h.Score
			cur.MatchType = h.MatchType
		}
		if clustered && m.MemberCount > cur.EditionCount {
			cur.EditionCount = m.MemberCount
		}
		if h.EditionCount > cur.EditionCount {
			cur.EditionCount = h.EditionCount
		}
		if h.BookID == key {
			cur.Sources = unionStrings(cur.Sources, h.Sources)
		}
	}

	metrics.AddDedupMerges("cluster", merges)
	return out
}

// asPrimary 命中改写为簇主版本
func asPrimary(h SearchHit, m Membership) SearchHit {
	p := m.Primary
	if p.BookID != h.BookID {
		h.BookID = p.BookID
		if p.Title != "" {
			h.Title = p.Title
		}
		h.Slug = p.Slug
		h.ISBN13 = p.ISBN13
		h.CoverURL = p.CoverURL
		// 数据源覆盖情况属于原版本，换成主版本后未知
		h.Sources = nil
	}
	h.ClusterID = m.ClusterID
	if m.MemberCount > h.EditionCount {
		h.EditionCount = m.MemberCount
	}
	return h
}

// mergeTitleAuthor 第二轮，只处理未聚类的命中
func mergeTitleAuthor(hits []SearchHit) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	index := make(map[string]int, len(hits))
	merges := 0

	for _, h := range hits {
		if h.ClusterID != "" {
			out = append(out, h)
			continue
		}
		key, ok := TitleAuthorKey(h.Title, h.Authors)
		if !ok {
			out = append(out, h)
			continue
		}

		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, h)
			continue
		}

		merges++
		cur := &out[i]
		if h.Score > cur.Score {
			cur.Score = h.Score
			cur.MatchType = h.MatchType
		}
		cur.EditionCount += h.EditionCount
	}

	metrics.AddDedupMerges("title_author", merges)
	return out
}

// TitleAuthorKey 归一化键 = 标题 + "::" + 第一作者
// 分解后去掉变音符号、转小写、只保留字母数字；标题为空时返回false
func TitleAuthorKey(title string, authors []string) (string, bool) {
	t := normalizeKeyPart(title)
	if t == "" {
		return "", false
	}
	var a string
	if len(authors) > 0 {
		a = normalizeKeyPart(authors[0])
	}
	return t + "::" + a, true
}

func normalizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, book.FoldText(s))
}

func withDefaults(h SearchHit) SearchHit {
	if h.EditionCount < 1 {
		h.EditionCount = 1
	}
	return h
}

func unionStrings(a, b []string) []string {
	for _, v := range b {
		found := false
		for _, x := range a {
			if x == v {
				found = true
				break
			}
		}
		if !found {
			a = append(a, v)
		}
	}
	return a
}
