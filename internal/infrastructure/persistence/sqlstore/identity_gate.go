package sqlstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// errNoTransaction 标识锁必须在事务内获取
var errNoTransaction = errors.New("identity lock requires a transaction")

// identityGate 事务级标识锁
// 设计说明:
// 1. PostgreSQL: pg_advisory_xact_lock，随事务结束自动释放
// 2. MySQL: identity_locks表中按lock_key插入一行后SELECT ... FOR UPDATE，行锁随事务释放
// 3. SQLite: 事务以BEGIN IMMEDIATE开启(_txlock=immediate)，写事务本身已经互斥，
//    锁行只用于保持三种方言的代码路径一致（SQLite方言忽略FOR UPDATE）
type identityGate struct {
	dialect string
}

// NewIdentityGate 按连接方言创建标识锁
func NewIdentityGate(db *gorm.DB) book.IdentityGate {
	return &identityGate{dialect: db.Dialector.Name()}
}

// Acquire 阻塞直到拿到锁或ctx结束
func (g *identityGate) Acquire(ctx context.Context, key int64) error {
	tx, ok := txFrom(ctx)
	if !ok {
		return errNoTransaction
	}
	tx = tx.WithContext(ctx)

	if g.dialect == "postgres" {
		return tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error
	}

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&IdentityLockModel{LockKey: key}).Error; err != nil && !isDuplicateError(err) {
		return err
	}
	var row IdentityLockModel
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("lock_key = ?", key).
		First(&row).Error
}
