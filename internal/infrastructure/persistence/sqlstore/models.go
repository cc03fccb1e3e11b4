package sqlstore

import (
	"time"
)

// BookModel GORM规范图书模型
// 设计说明:
// 1. 这是infrastructure层的数据模型，domain/book/entity.go是领域实体
// 2. ISBN列可空：NULL不参与唯一约束，非空值全局唯一
// 3. ID是UUIDv7字符串，按创建时间有序
type BookModel struct {
	ID            string    `gorm:"primaryKey;size:36;comment:UUIDv7"`
	ISBN13        *string   `gorm:"column:isbn13;uniqueIndex;size:13;comment:清洗后的ISBN-13"`
	ISBN10        *string   `gorm:"column:isbn10;uniqueIndex;size:10;comment:清洗后的ISBN-10"`
	Title         string    `gorm:"index;size:500;not null;comment:书名"`
	Subtitle      string    `gorm:"size:500;comment:副标题"`
	Publisher     string    `gorm:"size:255;comment:出版社"`
	PublishedDate string    `gorm:"size:20;comment:出版日期(数据源原样)"`
	Language      string    `gorm:"size:16;comment:语言"`
	PageCount     int       `gorm:"default:0;comment:页数"`
	Description   string    `gorm:"type:text;comment:图书描述"`
	Slug          string    `gorm:"uniqueIndex;size:160;not null;comment:全局唯一的可读标识"`
	Source        string    `gorm:"size:32;comment:首次创建的数据源"`
	CoverImageURL string    `gorm:"size:1000;comment:规范封面URL"`
	CreatedAt     time.Time `gorm:"comment:创建时间"`
	UpdatedAt     time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (BookModel) TableName() string {
	return "books"
}

// BookAuthorModel 作者，(book_id, name_key)唯一，position保持顺序
type BookAuthorModel struct {
	ID       uint   `gorm:"primaryKey"`
	BookID   string `gorm:"size:36;not null;uniqueIndex:uk_book_author,priority:1;comment:图书ID"`
	Name     string `gorm:"size:255;not null;index;comment:作者名"`
	NameKey  string `gorm:"size:255;not null;uniqueIndex:uk_book_author,priority:2;comment:小写作者名"`
	Position int    `gorm:"not null;default:0;comment:作者顺序"`
}

// TableName 指定表名
func (BookAuthorModel) TableName() string {
	return "book_authors"
}

// BookCategoryModel 分类，(book_id, name_key)唯一
type BookCategoryModel struct {
	ID      uint   `gorm:"primaryKey"`
	BookID  string `gorm:"size:36;not null;uniqueIndex:uk_book_category,priority:1;comment:图书ID"`
	Name    string `gorm:"size:255;not null;comment:分类"`
	NameKey string `gorm:"size:255;not null;uniqueIndex:uk_book_category,priority:2;comment:小写分类"`
}

// TableName 指定表名
func (BookCategoryModel) TableName() string {
	return "book_categories"
}

// BookExternalIDModel 外部标识映射，只插入不更新
// (source, external_id)唯一；(book_id, source)唯一
type BookExternalIDModel struct {
	ID         uint      `gorm:"primaryKey"`
	BookID     string    `gorm:"size:36;not null;uniqueIndex:uk_book_source,priority:1;comment:图书ID"`
	Source     string    `gorm:"size:32;not null;uniqueIndex:uk_source_external,priority:1;uniqueIndex:uk_book_source,priority:2;comment:数据源"`
	ExternalID string    `gorm:"size:255;not null;uniqueIndex:uk_source_external,priority:2;comment:数据源记录ID"`
	CreatedAt  time.Time `gorm:"comment:创建时间"`
}

// TableName 指定表名
func (BookExternalIDModel) TableName() string {
	return "book_external_ids"
}

// BookImageLinkModel 图片，(book_id, image_type)唯一
type BookImageLinkModel struct {
	ID               uint      `gorm:"primaryKey"`
	BookID           string    `gorm:"size:36;not null;uniqueIndex:uk_book_image,priority:1;comment:图书ID"`
	ImageType        string    `gorm:"size:32;not null;uniqueIndex:uk_book_image,priority:2;comment:图片类型"`
	URL              string    `gorm:"size:1000;not null;comment:图片URL"`
	S3ImagePath      string    `gorm:"size:500;comment:对象存储路径"`
	Width            int       `gorm:"default:0;comment:宽(像素)"`
	Height           int       `gorm:"default:0;comment:高(像素)"`
	IsHighResolution bool      `gorm:"default:false;comment:是否高分辨率"`
	Provider         string    `gorm:"size:32;comment:来源数据源"`
	CreatedAt        time.Time `gorm:"comment:创建时间"`
	UpdatedAt        time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (BookImageLinkModel) TableName() string {
	return "book_image_links"
}

// BookDimensionModel 物理尺寸，每本书一行
type BookDimensionModel struct {
	BookID    string    `gorm:"primaryKey;size:36;comment:图书ID"`
	Height    string    `gorm:"size:32;comment:高"`
	Width     string    `gorm:"size:32;comment:宽"`
	Thickness string    `gorm:"size:32;comment:厚"`
	UpdatedAt time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (BookDimensionModel) TableName() string {
	return "book_dimensions"
}

// WorkClusterModel 作品簇
type WorkClusterModel struct {
	ID            string    `gorm:"primaryKey;size:36;comment:UUIDv7"`
	ClusterMethod string    `gorm:"size:32;not null;comment:聚类方式(isbn-prefix/explicit)"`
	ISBNPrefix    *string   `gorm:"column:isbn_prefix;uniqueIndex;size:11;comment:ISBN-13前11位"`
	MemberCount   int       `gorm:"not null;default:0;comment:成员数"`
	CreatedAt     time.Time `gorm:"comment:创建时间"`
	UpdatedAt     time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (WorkClusterModel) TableName() string {
	return "work_clusters"
}

// WorkClusterMemberModel 簇成员，一本书最多属于一个簇
type WorkClusterMemberModel struct {
	ID         uint      `gorm:"primaryKey"`
	ClusterID  string    `gorm:"size:36;not null;index;comment:簇ID"`
	BookID     string    `gorm:"size:36;not null;uniqueIndex;comment:图书ID"`
	IsPrimary  bool      `gorm:"not null;default:false;comment:是否显式主版本"`
	Confidence float64   `gorm:"not null;default:0;comment:聚类置信度"`
	CreatedAt  time.Time `gorm:"comment:创建时间"`
}

// TableName 指定表名
func (WorkClusterMemberModel) TableName() string {
	return "work_cluster_members"
}

// IdentityLockModel 锁行表（MySQL/SQLite没有事务级咨询锁时使用）
type IdentityLockModel struct {
	LockKey   int64     `gorm:"primaryKey;autoIncrement:false;comment:标识锁键"`
	CreatedAt time.Time `gorm:"comment:首次使用时间"`
}

// TableName 指定表名
func (IdentityLockModel) TableName() string {
	return "identity_locks"
}

// OutboxEventModel 事件发件箱
type OutboxEventModel struct {
	ID          string     `gorm:"primaryKey;size:36;comment:UUIDv7(按写入顺序)"`
	AggregateID string     `gorm:"size:36;not null;index;comment:图书ID"`
	EventType   string     `gorm:"size:64;not null;comment:事件类型"`
	Payload     string     `gorm:"type:text;not null;comment:JSON负载"`
	Attempts    int        `gorm:"not null;default:0;comment:投递失败次数"`
	LastError   string     `gorm:"size:500;comment:最近一次投递错误"`
	CreatedAt   time.Time  `gorm:"comment:创建时间"`
	PublishedAt *time.Time `gorm:"index;comment:投递成功时间"`
}

// TableName 指定表名
func (OutboxEventModel) TableName() string {
	return "outbox_events"
}
