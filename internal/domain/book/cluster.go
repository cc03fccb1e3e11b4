package book

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// 聚类方式
const (
	ClusterMethodISBNPrefix = "isbn-prefix"
	ClusterMethodExplicit   = "explicit"
)

// PrefixConfidence ISBN前缀聚类的置信度
const PrefixConfidence = 0.9

// WorkCluster 作品簇：同一作品的不同版本
type WorkCluster struct {
	ID            string
	Method        string
	ISBNPrefix    string // 非空时唯一
	MemberCount   int
	PrimaryBookID string // 显式主版本，没有时为空
	CreatedAt     time.Time
}

// ClusterMember 簇成员，附带主版本排序所需的图书属性
type ClusterMember struct {
	BookID        string
	IsPrimary     bool
	Confidence    float64
	Title         string
	Slug          string
	ISBN13        string
	PublishedDate string
	CoverURL      string
	CoverHighRes  bool
	CoverArea     int
}

// memberLess 主版本优先顺序：
// 高分辨率封面 → 封面像素面积 → 置信度 → 出版日期更近 → 标题字典序 → 图书ID
// 最后一项保证全序，同样的输入总是得到同样的结果
func memberLess(a, b ClusterMember) bool {
	if a.CoverHighRes != b.CoverHighRes {
		return a.CoverHighRes
	}
	if a.CoverArea != b.CoverArea {
		return a.CoverArea > b.CoverArea
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	// 出版日期为ISO前缀格式（2008 / 2008-03 / 2008-03-15），字符串比较即可
	if a.PublishedDate != b.PublishedDate {
		return a.PublishedDate > b.PublishedDate
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.BookID < b.BookID
}

// RankMembers 返回排序后的副本：显式主版本第一，其余按主版本优先顺序
func RankMembers(members []ClusterMember) []ClusterMember {
	out := make([]ClusterMember, len(members))
	copy(out, members)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return memberLess(out[i], out[j])
	})
	return out
}

// SelectPrimary 簇的主版本：显式主版本优先，否则按排序计算（计算结果不落库）
func SelectPrimary(members []ClusterMember) (ClusterMember, bool) {
	if len(members) == 0 {
		return ClusterMember{}, false
	}
	return RankMembers(members)[0], true
}

// PrefixLockKey 同一ISBN前缀的聚类互斥键
// 不同ISBN的新书可能同时为同一前缀建簇，需要在ISBN锁之后再取这个锁
func PrefixLockKey(prefix string) (int64, bool) {
	if prefix == "" {
		return 0, false
	}
	return DeriveLockKey("", "", "ISBN_PREFIX", prefix)
}

// Clusterer 作品聚类
type Clusterer struct {
	clusters     ClusterRepository
	books        Repository
	gate         IdentityGate
	promoteFirst bool
	logger       *zap.Logger
}

// NewClusterer 创建聚类器
// promoteFirst: 簇没有主版本时，是否把新加入的成员提升为显式主版本
func NewClusterer(clusters ClusterRepository, books Repository, gate IdentityGate, promoteFirst bool, logger *zap.Logger) *Clusterer {
	return &Clusterer{
		clusters:     clusters,
		books:        books,
		gate:         gate,
		promoteFirst: promoteFirst,
		logger:       logger,
	}
}

// Assign 为新创建的图书安排作品簇，必须在upsert事务内调用
// 1. 没有13位ISBN：独立存在，不聚类
// 2. 同前缀的簇已存在：加入该簇
// 3. 没有簇但存在同前缀、未入簇的兄弟版本：新建isbn-prefix簇容纳两者
// 4. 否则：暂不聚类，等待兄弟版本出现
func (c *Clusterer) Assign(ctx context.Context, b *Book) (*WorkCluster, error) {
	prefix, ok := ISBNPrefix(b.ISBN13)
	if !ok {
		return nil, nil
	}
	if key, ok := PrefixLockKey(prefix); ok {
		if err := c.gate.Acquire(ctx, key); err != nil {
			return nil, LockError(err)
		}
	}

	cluster, err := c.clusters.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if cluster != nil {
		promote := c.promoteFirst && cluster.PrimaryBookID == ""
		member := ClusterMember{BookID: b.ID, IsPrimary: promote, Confidence: PrefixConfidence}
		if err := c.clusters.AddMember(ctx, cluster.ID, member); err != nil {
			return nil, err
		}
		cluster.MemberCount++
		if promote {
			cluster.PrimaryBookID = b.ID
		}
		c.logger.Debug("book joined work cluster",
			zap.String("book_id", b.ID),
			zap.String("cluster_id", cluster.ID),
			zap.Bool("promoted", promote))
		return cluster, nil
	}

	siblings, err := c.books.FindUnclusteredByISBNPrefix(ctx, prefix, b.ID)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, nil
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	cluster = &WorkCluster{
		ID:          id,
		Method:      ClusterMethodISBNPrefix,
		ISBNPrefix:  prefix,
		MemberCount: len(siblings) + 1,
		CreatedAt:   time.Now(),
	}

	// 兄弟版本按ID（即创建时间）排在前面，最早的版本是"第一个成员"
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].ID < siblings[j].ID })
	members := make([]ClusterMember, 0, len(siblings)+1)
	for i, s := range siblings {
		promote := c.promoteFirst && i == 0
		members = append(members, ClusterMember{BookID: s.ID, IsPrimary: promote, Confidence: PrefixConfidence})
		if promote {
			cluster.PrimaryBookID = s.ID
		}
	}
	members = append(members, ClusterMember{BookID: b.ID, Confidence: PrefixConfidence})

	if err := c.clusters.Create(ctx, cluster, members); err != nil {
		return nil, err
	}
	c.logger.Info("work cluster created",
		zap.String("cluster_id", cluster.ID),
		zap.String("isbn_prefix", prefix),
		zap.Int("members", cluster.MemberCount))
	return cluster, nil
}
