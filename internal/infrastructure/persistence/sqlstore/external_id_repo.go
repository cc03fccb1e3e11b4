package sqlstore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// externalIDRepository 外部标识映射仓储
type externalIDRepository struct {
	db *gorm.DB
}

// NewExternalIDRepository 创建外部标识仓储
func NewExternalIDRepository(db *gorm.DB) book.ExternalIDRepository {
	return &externalIDRepository{db: db}
}

// Resolve (source, externalId) → bookId
func (r *externalIDRepository) Resolve(ctx context.Context, source, externalID string) (string, bool, error) {
	if source == "" || externalID == "" {
		return "", false, nil
	}
	var ids []string
	err := conn(ctx, r.db).Model(&BookExternalIDModel{}).
		Where("source = ? AND external_id = ?", source, externalID).
		Limit(1).
		Pluck("book_id", &ids).Error
	if err != nil {
		return "", false, dbError(err, "查询外部标识失败")
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

// Reverse bookId → {source: externalId}
func (r *externalIDRepository) Reverse(ctx context.Context, bookID string) (map[string]string, error) {
	var rows []BookExternalIDModel
	if err := conn(ctx, r.db).Where("book_id = ?", bookID).Find(&rows).Error; err != nil {
		return nil, dbError(err, "查询外部标识失败")
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Source] = row.ExternalID
	}
	return out, nil
}

// Link 插入映射，任一唯一约束冲突时什么都不做
// ON CONFLICT DO NOTHING不会中断外层事务（PostgreSQL中失败的INSERT会让整个事务不可用）
func (r *externalIDRepository) Link(ctx context.Context, bookID, source, externalID string) (bool, error) {
	row := &BookExternalIDModel{BookID: bookID, Source: source, ExternalID: externalID}
	result := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		if isDuplicateError(result.Error) {
			return false, nil
		}
		return false, dbError(result.Error, "写入外部标识失败")
	}
	return result.RowsAffected > 0, nil
}

// sourcesOf 批量查询图书已有映射的数据源（搜索结果补全用）
func sourcesOf(db *gorm.DB, bookIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}
	var rows []BookExternalIDModel
	if err := db.Where("book_id IN ?", bookIDs).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError(err, "查询外部标识失败")
	}
	for _, row := range rows {
		out[row.BookID] = append(out[row.BookID], row.Source)
	}
	return out, nil
}
