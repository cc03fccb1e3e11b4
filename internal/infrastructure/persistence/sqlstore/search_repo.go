package sqlstore

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/domain/search"
)

// 词法检索打分
const (
	scoreISBN           = 1.0
	scoreTitleExact     = 1.0
	scoreTitlePrefix    = 0.9
	scoreTitleContains  = 0.7
	scoreAuthorExact    = 0.6
	scoreAuthorContains = 0.5
	scorePublisher      = 0.3

	maxQueryLength = 200
)

// SearchStore 基于LIKE的词法检索
// 注意：这里只做简单的子串匹配，没有分词和相关度模型
type SearchStore struct {
	db *gorm.DB
}

// NewSearchStore 创建检索仓储
func NewSearchStore(db *gorm.DB) *SearchStore {
	return &SearchStore{db: db}
}

var _ search.LexicalSearcher = (*SearchStore)(nil)

type scored struct {
	id    string
	score float64
	match string
}

// Search 返回按相关度降序、同分按创建顺序的命中
func (s *SearchStore) Search(ctx context.Context, query string, limit int) ([]search.SearchHit, error) {
	q := strings.TrimSpace(query)
	if q == "" || limit <= 0 {
		return nil, nil
	}
	if len(q) > maxQueryLength {
		q = q[:maxQueryLength]
		for !utf8.ValidString(q) {
			q = q[:len(q)-1]
		}
	}
	db := conn(ctx, s.db)

	hits := make(map[string]*scored)
	add := func(id string, score float64, match string) {
		if h, ok := hits[id]; ok {
			if score > h.score {
				h.score, h.match = score, match
			}
			return
		}
		hits[id] = &scored{id: id, score: score, match: match}
	}

	if isbn := book.SanitizeISBN(q); looksLikeISBN(q, isbn) {
		var ids []string
		if err := db.Model(&BookModel{}).Where("isbn13 = ? OR isbn10 = ?", isbn, isbn).Pluck("id", &ids).Error; err != nil {
			return nil, dbError(err, "检索图书失败")
		}
		for _, id := range ids {
			add(id, scoreISBN, search.MatchISBN)
		}
	}

	lower := strings.ToLower(q)
	pattern := "%" + escapeLike(lower) + "%"
	prefix := escapeLike(lower) + "%"

	// 候选数有上限，先按精确、前缀、包含排序再截断，避免高分命中被截掉
	var titles []BookModel
	if err := db.Select("id", "title").
		Where("LOWER(title) LIKE ? ESCAPE '!'", pattern).
		Order(rankOrder("LOWER(title)", lower, prefix)).
		Limit(limit * 4).
		Find(&titles).Error; err != nil {
		return nil, dbError(err, "检索图书失败")
	}
	for _, t := range titles {
		title := strings.ToLower(t.Title)
		switch {
		case title == lower:
			add(t.ID, scoreTitleExact, search.MatchTitle)
		case strings.HasPrefix(title, lower):
			add(t.ID, scoreTitlePrefix, search.MatchTitle)
		default:
			add(t.ID, scoreTitleContains, search.MatchTitle)
		}
	}

	var authors []BookAuthorModel
	if err := db.Select("book_id", "name_key").
		Where("name_key LIKE ? ESCAPE '!'", pattern).
		Order(rankOrder("name_key", lower, prefix)).
		Limit(limit * 4).
		Find(&authors).Error; err != nil {
		return nil, dbError(err, "检索作者失败")
	}
	for _, a := range authors {
		if a.NameKey == lower {
			add(a.BookID, scoreAuthorExact, search.MatchAuthor)
		} else {
			add(a.BookID, scoreAuthorContains, search.MatchAuthor)
		}
	}

	var publishers []string
	if err := db.Model(&BookModel{}).
		Where("LOWER(publisher) LIKE ? ESCAPE '!'", pattern).
		Order("id").
		Limit(limit).
		Pluck("id", &publishers).Error; err != nil {
		return nil, dbError(err, "检索出版社失败")
	}
	for _, id := range publishers {
		add(id, scorePublisher, search.MatchPublisher)
	}

	ranked := make([]*scored, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, h)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return s.hydrate(ctx, ranked)
}

// hydrate 补全命中的展示字段
func (s *SearchStore) hydrate(ctx context.Context, ranked []*scored) ([]search.SearchHit, error) {
	if len(ranked) == 0 {
		return nil, nil
	}
	db := conn(ctx, s.db)
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.id)
	}

	var books []BookModel
	if err := db.Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, dbError(err, "查询图书失败")
	}
	byID := make(map[string]*BookModel, len(books))
	for i := range books {
		byID[books[i].ID] = &books[i]
	}

	var authors []BookAuthorModel
	if err := db.Where("book_id IN ?", ids).Order("position, id").Find(&authors).Error; err != nil {
		return nil, dbError(err, "查询作者失败")
	}
	authorsOf := make(map[string][]string)
	for _, a := range authors {
		authorsOf[a.BookID] = append(authorsOf[a.BookID], a.Name)
	}

	sources, err := sourcesOf(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]search.SearchHit, 0, len(ranked))
	for _, r := range ranked {
		b, ok := byID[r.id]
		if !ok {
			continue
		}
		out = append(out, search.SearchHit{
			BookID:       b.ID,
			Title:        b.Title,
			Authors:      authorsOf[b.ID],
			Slug:         b.Slug,
			ISBN13:       deref(b.ISBN13),
			CoverURL:     b.CoverImageURL,
			Score:        r.score,
			MatchType:    r.match,
			EditionCount: 1,
			Sources:      sources[b.ID],
		})
	}
	return out, nil
}

// rankOrder 精确匹配排最前，其次前缀匹配，同档按id
func rankOrder(column, exact, prefix string) clause.OrderBy {
	return clause.OrderBy{Expression: clause.Expr{
		SQL:                "CASE WHEN " + column + " = ? THEN 0 WHEN " + column + " LIKE ? ESCAPE '!' THEN 1 ELSE 2 END, id",
		Vars:               []interface{}{exact, prefix},
		WithoutParentheses: true,
	}}
}

// looksLikeISBN 查询主体是数字（允许连字符和空格）且清洗后长度为10或13
func looksLikeISBN(raw, sanitized string) bool {
	if len(sanitized) != 10 && len(sanitized) != 13 {
		return false
	}
	for _, r := range raw {
		if (r < '0' || r > '9') && r != '-' && r != ' ' && r != 'X' && r != 'x' {
			return false
		}
	}
	return true
}

// escapeLike 转义LIKE通配符，转义字符为'!'（三种方言都支持ESCAPE子句）
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
