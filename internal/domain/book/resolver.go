package book

import "context"

// 命中方式，用于日志
const (
	MatchISBN13     = "isbn13"
	MatchISBN10     = "isbn10"
	MatchExternalID = "external_id"
	MatchCluster    = "work_cluster"
)

// Resolution 标识解析结果
type Resolution struct {
	BookID string
	Via    string
}

// Found 是否命中已有图书
func (r Resolution) Found() bool { return r.BookID != "" }

// Resolver 标识解析：把输入映射到已有的规范图书
// 查找顺序（先命中者胜）：
// 1. ISBN-13精确匹配
// 2. ISBN-10精确匹配
// 3. (source, externalId) 映射
// 4. ISBN前缀对应作品簇的显式主版本
// 通用标识优先于数据源私有标识，避免同一本书以两个数据源ID重复进入
type Resolver struct {
	books    Repository
	extIDs   ExternalIDIndex
	clusters ClusterRepository
}

// NewResolver 创建解析器
func NewResolver(books Repository, extIDs ExternalIDIndex, clusters ClusterRepository) *Resolver {
	return &Resolver{books: books, extIDs: extIDs, clusters: clusters}
}

// Resolve 输入必须已经Normalize
func (r *Resolver) Resolve(ctx context.Context, in *NormalizedBook) (Resolution, error) {
	if in.ISBN13 != "" {
		id, ok, err := r.books.FindIDByISBN13(ctx, in.ISBN13)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{BookID: id, Via: MatchISBN13}, nil
		}
	}

	if in.ISBN10 != "" {
		id, ok, err := r.books.FindIDByISBN10(ctx, in.ISBN10)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{BookID: id, Via: MatchISBN10}, nil
		}
	}

	if in.Source != "" && in.ExternalID != "" {
		id, ok, err := r.extIDs.Resolve(ctx, in.Source, in.ExternalID)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{BookID: id, Via: MatchExternalID}, nil
		}
	}

	if prefix, ok := ISBNPrefix(in.ISBN13); ok {
		cluster, err := r.clusters.FindByPrefix(ctx, prefix)
		if err != nil {
			return Resolution{}, err
		}
		if cluster != nil && cluster.PrimaryBookID != "" {
			return Resolution{BookID: cluster.PrimaryBookID, Via: MatchCluster}, nil
		}
	}

	return Resolution{}, nil
}
