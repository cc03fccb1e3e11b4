package book

import (
	"context"
	"time"
)

// Repository 规范图书仓储接口(依赖倒置原则)
// 设计说明:
// 1. 由domain层定义接口,infrastructure层实现
// 2. 所有写方法在ctx携带事务时加入该事务（见TxManager）
// 3. Merge*方法按(book_id, 自然键)幂等，重复调用不会产生重复行
type Repository interface {
	// FindIDByISBN13 按清洗后的ISBN-13精确查找
	FindIDByISBN13(ctx context.Context, isbn13 string) (string, bool, error)

	// FindIDByISBN10 按清洗后的ISBN-10精确查找
	FindIDByISBN10(ctx context.Context, isbn10 string) (string, bool, error)

	// FindByID 加载完整图书（含作者、分类、图片、尺寸），不存在返回ErrBookNotFound
	FindByID(ctx context.Context, id string) (*Book, error)

	// FindBySlug 按slug加载完整图书
	FindBySlug(ctx context.Context, slug string) (*Book, error)

	// SlugExists slug是否已被占用
	SlugExists(ctx context.Context, slug string) (bool, error)

	// Create 插入新图书核心行；slug被其它事务占用时返回ErrSlugTaken且不影响当前事务
	Create(ctx context.Context, book *Book) error

	// UpdateCore 更新核心字段（不含id；slug只在原值为空时由服务补写）
	UpdateCore(ctx context.Context, book *Book) error

	// MergeAuthors 作者按顺序合并，已存在的作者保留原位置
	MergeAuthors(ctx context.Context, bookID string, authors []string) error

	// MergeCategories 分类集合并集
	MergeCategories(ctx context.Context, bookID string, categories []string) error

	// SaveImageLink 按(book_id, type)写入或替换图片
	SaveImageLink(ctx context.Context, bookID string, link ImageLink) error

	// SaveDimensions 写入合并后的物理尺寸（每本书一行）
	SaveDimensions(ctx context.Context, bookID string, d Dimensions) error

	// FindUnclusteredByISBNPrefix 同前缀、尚未入簇的其它图书
	FindUnclusteredByISBNPrefix(ctx context.Context, prefix, excludeID string) ([]*Book, error)
}

// ExternalIDIndex 外部标识双向索引（只读部分）
type ExternalIDIndex interface {
	// Resolve (source, externalId) → bookId
	Resolve(ctx context.Context, source, externalID string) (string, bool, error)

	// Reverse bookId → {source: externalId}
	Reverse(ctx context.Context, bookID string) (map[string]string, error)
}

// ExternalIDRepository 外部标识仓储
// 映射只插入不更新：(source, external_id)唯一，(book_id, source)唯一
type ExternalIDRepository interface {
	ExternalIDIndex

	// Link 插入映射；任一唯一约束冲突时不做任何修改并返回false
	Link(ctx context.Context, bookID, source, externalID string) (bool, error)
}

// ClusterRepository 作品簇仓储
type ClusterRepository interface {
	// FindByPrefix 按ISBN前缀查找，不存在返回nil
	FindByPrefix(ctx context.Context, prefix string) (*WorkCluster, error)

	// FindByBookID 图书所属的簇，不存在返回nil
	FindByBookID(ctx context.Context, bookID string) (*WorkCluster, error)

	// Create 创建簇及其初始成员
	Create(ctx context.Context, cluster *WorkCluster, members []ClusterMember) error

	// AddMember 添加成员并维护member_count
	AddMember(ctx context.Context, clusterID string, member ClusterMember) error

	// Members 簇成员（带排序所需的图书属性）
	Members(ctx context.Context, clusterID string) ([]ClusterMember, error)
}

// OutboxRepository 事件发件箱
type OutboxRepository interface {
	// Append 与数据写入处于同一事务
	Append(ctx context.Context, event *OutboxEvent) error
}

// IdentityGate 事务级互斥锁
// Acquire必须在事务内调用，锁随事务提交或回滚自动释放，没有Unlock
type IdentityGate interface {
	Acquire(ctx context.Context, key int64) error
}

// TxManager 事务管理器
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxEvent 发件箱中的一条事件
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
	PublishedAt *time.Time
}
