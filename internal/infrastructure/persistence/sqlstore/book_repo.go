package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// bookRepository 规范图书仓储实现
// 设计说明:
// 1. 实现domain/book/repository.go定义的接口
// 2. 负责domain实体与GORM模型之间的转换
// 3. 作者、分类、图片、尺寸是子表，按(book_id, 自然键)幂等写入
type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository 创建图书仓储
func NewBookRepository(db *gorm.DB) book.Repository {
	return &bookRepository{db: db}
}

// FindIDByISBN13 按ISBN-13查找图书ID
func (r *bookRepository) FindIDByISBN13(ctx context.Context, isbn13 string) (string, bool, error) {
	return r.findID(ctx, "isbn13 = ?", isbn13)
}

// FindIDByISBN10 按ISBN-10查找图书ID
func (r *bookRepository) FindIDByISBN10(ctx context.Context, isbn10 string) (string, bool, error) {
	return r.findID(ctx, "isbn10 = ?", isbn10)
}

func (r *bookRepository) findID(ctx context.Context, cond string, value string) (string, bool, error) {
	if value == "" {
		return "", false, nil
	}
	var ids []string
	err := conn(ctx, r.db).Model(&BookModel{}).
		Where(cond, value).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return "", false, dbError(err, "查询图书ID失败")
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

// FindByID 根据ID加载完整图书
func (r *bookRepository) FindByID(ctx context.Context, id string) (*book.Book, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySlug 根据slug加载完整图书
func (r *bookRepository) FindBySlug(ctx context.Context, slug string) (*book.Book, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *bookRepository) findOne(ctx context.Context, cond string, value string) (*book.Book, error) {
	var model BookModel
	err := conn(ctx, r.db).Where(cond, value).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrBookNotFound
		}
		return nil, dbError(err, "查询图书失败")
	}

	b := model.toEntity()
	if err := r.loadChildren(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// loadChildren 加载作者、分类、图片、尺寸
func (r *bookRepository) loadChildren(ctx context.Context, b *book.Book) error {
	db := conn(ctx, r.db)

	var authors []BookAuthorModel
	if err := db.Where("book_id = ?", b.ID).Order("position, id").Find(&authors).Error; err != nil {
		return dbError(err, "查询作者失败")
	}
	for _, a := range authors {
		b.Authors = append(b.Authors, a.Name)
	}

	var categories []BookCategoryModel
	if err := db.Where("book_id = ?", b.ID).Order("id").Find(&categories).Error; err != nil {
		return dbError(err, "查询分类失败")
	}
	for _, c := range categories {
		b.Categories = append(b.Categories, c.Name)
	}

	var images []BookImageLinkModel
	if err := db.Where("book_id = ?", b.ID).Order("id").Find(&images).Error; err != nil {
		return dbError(err, "查询图片失败")
	}
	for _, m := range images {
		b.ImageLinks = append(b.ImageLinks, m.toEntity())
	}

	var dims []BookDimensionModel
	if err := db.Where("book_id = ?", b.ID).Limit(1).Find(&dims).Error; err != nil {
		return dbError(err, "查询尺寸失败")
	}
	if len(dims) > 0 {
		b.Dimensions = &book.Dimensions{Height: dims[0].Height, Width: dims[0].Width, Thickness: dims[0].Thickness}
	}
	return nil
}

// SlugExists slug是否已被占用
func (r *bookRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := conn(ctx, r.db).Model(&BookModel{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, dbError(err, "查询slug失败")
	}
	return count > 0, nil
}

// Create 插入图书核心行
// 设计说明:
// 1. ON CONFLICT DO NOTHING：唯一约束冲突不报错，事务（尤其PostgreSQL）保持可用
// 2. 没有插入任何行时用当前读判断是否为slug冲突，是则返回ErrSlugTaken由服务换候选
// 3. 其它唯一键冲突说明同一标识的并发写入绕过了标识锁，按数据库错误处理（整个事务回滚）
func (r *bookRepository) Create(ctx context.Context, b *book.Book) error {
	model := bookModelFrom(b)
	db := conn(ctx, r.db)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if res.Error != nil {
		if isDuplicateError(res.Error) {
			return dbError(res.Error, "图书唯一键冲突")
		}
		return dbError(res.Error, "创建图书失败")
	}
	if res.RowsAffected == 0 {
		taken, err := r.slugHeldByOther(ctx, b.Slug, b.ID)
		if err != nil {
			return err
		}
		if taken {
			return book.ErrSlugTaken
		}
		return dbError(gorm.ErrDuplicatedKey, "图书唯一键冲突")
	}
	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt
	return nil
}

// slugHeldByOther 加共享锁读取最新提交的数据，不受MySQL可重复读快照影响
func (r *bookRepository) slugHeldByOther(ctx context.Context, slug, id string) (bool, error) {
	var ids []string
	err := conn(ctx, r.db).Model(&BookModel{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("slug = ? AND id <> ?", slug, id).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, dbError(err, "查询slug失败")
	}
	return len(ids) > 0, nil
}

// UpdateCore 更新核心字段
// 使用map更新，空字符串也会写入（合并规则已经在domain层保证不回退）
func (r *bookRepository) UpdateCore(ctx context.Context, b *book.Book) error {
	err := conn(ctx, r.db).Model(&BookModel{}).
		Where("id = ?", b.ID).
		Updates(map[string]interface{}{
			"isbn13":          nullable(b.ISBN13),
			"isbn10":          nullable(b.ISBN10),
			"title":           b.Title,
			"subtitle":        b.Subtitle,
			"publisher":       b.Publisher,
			"published_date":  b.PublishedDate,
			"language":        b.Language,
			"page_count":      b.PageCount,
			"description":     b.Description,
			"slug":            b.Slug,
			"cover_image_url": b.CoverImageURL,
		}).Error
	if err != nil {
		return dbError(err, "更新图书失败")
	}
	return nil
}

// MergeAuthors 追加新作者，已存在的作者（忽略大小写）保留原位置
func (r *bookRepository) MergeAuthors(ctx context.Context, bookID string, authors []string) error {
	if len(authors) == 0 {
		return nil
	}
	db := conn(ctx, r.db)

	var existing []BookAuthorModel
	if err := db.Where("book_id = ?", bookID).Find(&existing).Error; err != nil {
		return dbError(err, "查询作者失败")
	}
	seen := make(map[string]bool, len(existing))
	next := 0
	for _, a := range existing {
		seen[a.NameKey] = true
		if a.Position >= next {
			next = a.Position + 1
		}
	}

	var rows []BookAuthorModel
	for _, name := range authors {
		key := lowerKey(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, BookAuthorModel{BookID: bookID, Name: name, NameKey: key, Position: next})
		next++
	}
	if len(rows) == 0 {
		return nil
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return dbError(err, "写入作者失败")
	}
	return nil
}

// MergeCategories 分类取并集
func (r *bookRepository) MergeCategories(ctx context.Context, bookID string, categories []string) error {
	if len(categories) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(categories))
	var rows []BookCategoryModel
	for _, name := range categories {
		key := lowerKey(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, BookCategoryModel{BookID: bookID, Name: name, NameKey: key})
	}
	if len(rows) == 0 {
		return nil
	}
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}, {Name: "name_key"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return dbError(err, "写入分类失败")
	}
	return nil
}

// SaveImageLink 按(book_id, image_type)写入或替换
func (r *bookRepository) SaveImageLink(ctx context.Context, bookID string, link book.ImageLink) error {
	model := imageModelFrom(bookID, link)
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "book_id"}, {Name: "image_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"url", "s3_image_path", "width", "height", "is_high_resolution", "provider", "updated_at",
		}),
	}).Create(model).Error
	if err != nil {
		return dbError(err, "写入图片失败")
	}
	return nil
}

// SaveDimensions 写入合并后的尺寸
func (r *bookRepository) SaveDimensions(ctx context.Context, bookID string, d book.Dimensions) error {
	model := &BookDimensionModel{
		BookID:    bookID,
		Height:    d.Height,
		Width:     d.Width,
		Thickness: d.Thickness,
		UpdatedAt: time.Now(),
	}
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"height", "width", "thickness", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return dbError(err, "写入尺寸失败")
	}
	return nil
}

// FindUnclusteredByISBNPrefix 同前缀、尚未入簇的其它图书（只加载核心字段）
func (r *bookRepository) FindUnclusteredByISBNPrefix(ctx context.Context, prefix, excludeID string) ([]*book.Book, error) {
	if prefix == "" {
		return nil, nil
	}
	db := conn(ctx, r.db)
	clustered := conn(ctx, r.db).Model(&WorkClusterMemberModel{}).Select("book_id")

	var models []BookModel
	err := db.Where("isbn13 LIKE ?", prefix+"%").
		Where("id <> ?", excludeID).
		Where("id NOT IN (?)", clustered).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, dbError(err, "查询同前缀图书失败")
	}

	books := make([]*book.Book, 0, len(models))
	for i := range models {
		books = append(books, models[i].toEntity())
	}
	return books, nil
}

// =========================================
// 模型转换
// =========================================

func bookModelFrom(b *book.Book) *BookModel {
	return &BookModel{
		ID:            b.ID,
		ISBN13:        nullable(b.ISBN13),
		ISBN10:        nullable(b.ISBN10),
		Title:         b.Title,
		Subtitle:      b.Subtitle,
		Publisher:     b.Publisher,
		PublishedDate: b.PublishedDate,
		Language:      b.Language,
		PageCount:     b.PageCount,
		Description:   b.Description,
		Slug:          b.Slug,
		Source:        b.Source,
		CoverImageURL: b.CoverImageURL,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func (m *BookModel) toEntity() *book.Book {
	return &book.Book{
		ID:            m.ID,
		ISBN13:        deref(m.ISBN13),
		ISBN10:        deref(m.ISBN10),
		Title:         m.Title,
		Subtitle:      m.Subtitle,
		Publisher:     m.Publisher,
		PublishedDate: m.PublishedDate,
		Language:      m.Language,
		PageCount:     m.PageCount,
		Description:   m.Description,
		Slug:          m.Slug,
		Source:        m.Source,
		CoverImageURL: m.CoverImageURL,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func imageModelFrom(bookID string, l book.ImageLink) *BookImageLinkModel {
	return &BookImageLinkModel{
		BookID:           bookID,
		ImageType:        l.Type,
		URL:              l.URL,
		S3ImagePath:      l.S3Path,
		Width:            l.Width,
		Height:           l.Height,
		IsHighResolution: l.HighRes,
		Provider:         l.Provider,
	}
}

func (m *BookImageLinkModel) toEntity() book.ImageLink {
	return book.ImageLink{
		Type:     m.ImageType,
		URL:      m.URL,
		S3Path:   m.S3ImagePath,
		Width:    m.Width,
		Height:   m.Height,
		HighRes:  m.IsHighResolution,
		Provider: m.Provider,
	}
}
