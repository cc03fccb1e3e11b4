package sqlstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/domain/search"
)

// ClusterStore 作品簇仓储
// 同时实现search.ClusterLookup，供搜索去重批量查询归属
type ClusterStore struct {
	db *gorm.DB
}

// NewClusterStore 创建作品簇仓储
func NewClusterStore(db *gorm.DB) *ClusterStore {
	return &ClusterStore{db: db}
}

var (
	_ book.ClusterRepository = (*ClusterStore)(nil)
	_ search.ClusterLookup   = (*ClusterStore)(nil)
)

// FindByPrefix 按ISBN前缀查找簇
func (r *ClusterStore) FindByPrefix(ctx context.Context, prefix string) (*book.WorkCluster, error) {
	var models []WorkClusterModel
	if err := conn(ctx, r.db).Where("isbn_prefix = ?", prefix).Limit(1).Find(&models).Error; err != nil {
		return nil, dbError(err, "查询作品簇失败")
	}
	if len(models) == 0 {
		return nil, nil
	}
	return r.withPrimary(ctx, &models[0])
}

// FindByBookID 图书所属的簇
func (r *ClusterStore) FindByBookID(ctx context.Context, bookID string) (*book.WorkCluster, error) {
	db := conn(ctx, r.db)
	var members []WorkClusterMemberModel
	if err := db.Where("book_id = ?", bookID).Limit(1).Find(&members).Error; err != nil {
		return nil, dbError(err, "查询簇成员失败")
	}
	if len(members) == 0 {
		return nil, nil
	}

	var models []WorkClusterModel
	if err := db.Where("id = ?", members[0].ClusterID).Limit(1).Find(&models).Error; err != nil {
		return nil, dbError(err, "查询作品簇失败")
	}
	if len(models) == 0 {
		return nil, nil
	}
	return r.withPrimary(ctx, &models[0])
}

// withPrimary 补上显式主版本ID
func (r *ClusterStore) withPrimary(ctx context.Context, m *WorkClusterModel) (*book.WorkCluster, error) {
	var ids []string
	err := conn(ctx, r.db).Model(&WorkClusterMemberModel{}).
		Where("cluster_id = ? AND is_primary = ?", m.ID, true).
		Order("id").
		Limit(1).
		Pluck("book_id", &ids).Error
	if err != nil {
		return nil, dbError(err, "查询主版本失败")
	}
	c := m.toEntity()
	if len(ids) > 0 {
		c.PrimaryBookID = ids[0]
	}
	return c, nil
}

// Create 创建簇及其初始成员
func (r *ClusterStore) Create(ctx context.Context, cluster *book.WorkCluster, members []book.ClusterMember) error {
	db := conn(ctx, r.db)
	model := &WorkClusterModel{
		ID:            cluster.ID,
		ClusterMethod: cluster.Method,
		ISBNPrefix:    nullable(cluster.ISBNPrefix),
		MemberCount:   len(members),
		CreatedAt:     cluster.CreatedAt,
	}
	if err := db.Create(model).Error; err != nil {
		return dbError(err, "创建作品簇失败")
	}
	if len(members) == 0 {
		return nil
	}

	rows := make([]WorkClusterMemberModel, 0, len(members))
	for _, m := range members {
		rows = append(rows, WorkClusterMemberModel{
			ClusterID:  cluster.ID,
			BookID:     m.BookID,
			IsPrimary:  m.IsPrimary,
			Confidence: m.Confidence,
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return dbError(err, "写入簇成员失败")
	}
	return nil
}

// AddMember 添加成员，member_count原子加一
func (r *ClusterStore) AddMember(ctx context.Context, clusterID string, member book.ClusterMember) error {
	db := conn(ctx, r.db)
	row := &WorkClusterMemberModel{
		ClusterID:  clusterID,
		BookID:     member.BookID,
		IsPrimary:  member.IsPrimary,
		Confidence: member.Confidence,
	}
	if err := db.Create(row).Error; err != nil {
		return dbError(err, "写入簇成员失败")
	}
	err := db.Model(&WorkClusterModel{}).
		Where("id = ?", clusterID).
		Update("member_count", gorm.Expr("member_count + ?", 1)).Error
	if err != nil {
		return dbError(err, "更新簇成员数失败")
	}
	return nil
}

// Members 簇成员及排序所需的图书属性
func (r *ClusterStore) Members(ctx context.Context, clusterID string) ([]book.ClusterMember, error) {
	byCluster, err := r.loadMembers(ctx, []string{clusterID})
	if err != nil {
		return nil, err
	}
	return byCluster[clusterID], nil
}

// Memberships 批量查询作品簇归属
// 簇的主版本按book.SelectPrimary计算，与详情页的版本列表保持一致
func (r *ClusterStore) Memberships(ctx context.Context, bookIDs []string) (map[string]search.Membership, error) {
	out := make(map[string]search.Membership, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}

	var rows []WorkClusterMemberModel
	if err := conn(ctx, r.db).Where("book_id IN ?", bookIDs).Find(&rows).Error; err != nil {
		return nil, dbError(err, "查询簇成员失败")
	}
	if len(rows) == 0 {
		return out, nil
	}

	clusterOf := make(map[string]string, len(rows))
	var clusterIDs []string
	seen := make(map[string]bool)
	for _, row := range rows {
		clusterOf[row.BookID] = row.ClusterID
		if !seen[row.ClusterID] {
			seen[row.ClusterID] = true
			clusterIDs = append(clusterIDs, row.ClusterID)
		}
	}

	byCluster, err := r.loadMembers(ctx, clusterIDs)
	if err != nil {
		return nil, err
	}

	memberships := make(map[string]search.Membership, len(byCluster))
	for id, members := range byCluster {
		primary, ok := book.SelectPrimary(members)
		if !ok {
			continue
		}
		memberships[id] = search.Membership{ClusterID: id, MemberCount: len(members), Primary: primary}
	}
	for bookID, clusterID := range clusterOf {
		if m, ok := memberships[clusterID]; ok {
			out[bookID] = m
		}
	}
	return out, nil
}

// loadMembers 按簇批量加载成员，图书属性和封面一次查出
func (r *ClusterStore) loadMembers(ctx context.Context, clusterIDs []string) (map[string][]book.ClusterMember, error) {
	db := conn(ctx, r.db)

	var rows []WorkClusterMemberModel
	if err := db.Where("cluster_id IN ?", clusterIDs).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError(err, "查询簇成员失败")
	}
	if len(rows) == 0 {
		return map[string][]book.ClusterMember{}, nil
	}

	bookIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		bookIDs = append(bookIDs, row.BookID)
	}

	var books []BookModel
	if err := db.Where("id IN ?", bookIDs).Find(&books).Error; err != nil {
		return nil, dbError(err, "查询簇成员图书失败")
	}
	bookByID := make(map[string]*BookModel, len(books))
	for i := range books {
		bookByID[books[i].ID] = &books[i]
	}

	var images []BookImageLinkModel
	if err := db.Where("book_id IN ?", bookIDs).Find(&images).Error; err != nil {
		return nil, dbError(err, "查询簇成员图片失败")
	}
	imagesByBook := make(map[string][]book.ImageLink)
	for i := range images {
		imagesByBook[images[i].BookID] = append(imagesByBook[images[i].BookID], images[i].toEntity())
	}

	out := make(map[string][]book.ClusterMember, len(clusterIDs))
	for _, row := range rows {
		m := book.ClusterMember{BookID: row.BookID, IsPrimary: row.IsPrimary, Confidence: row.Confidence}
		if b, ok := bookByID[row.BookID]; ok {
			m.Title = b.Title
			m.Slug = b.Slug
			m.ISBN13 = deref(b.ISBN13)
			m.PublishedDate = b.PublishedDate
			m.CoverURL = b.CoverImageURL
		}
		if cover, ok := book.CanonicalImage(imagesByBook[row.BookID]); ok {
			m.CoverURL = cover.URL
			m.CoverHighRes = cover.HighRes
			m.CoverArea = cover.Area()
		}
		out[row.ClusterID] = append(out[row.ClusterID], m)
	}
	return out, nil
}

func (m *WorkClusterModel) toEntity() *book.WorkCluster {
	return &book.WorkCluster{
		ID:          m.ID,
		Method:      m.ClusterMethod,
		ISBNPrefix:  deref(m.ISBNPrefix),
		MemberCount: m.MemberCount,
		CreatedAt:   m.CreatedAt,
	}
}
