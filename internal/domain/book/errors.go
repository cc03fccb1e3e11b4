package book

import (
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
)

// 图书领域错误定义
var (
	// ErrTitleRequired 标题为空，在任何I/O之前拒绝
	ErrTitleRequired = apperrors.New(apperrors.ErrCodeTitleRequired, "图书标题不能为空")

	// ErrBookNotFound 图书不存在
	ErrBookNotFound = apperrors.New(apperrors.ErrCodeBookNotFound, "图书不存在")

	// ErrLockAcquisition 获取标识锁失败，调用方可以整体重试
	ErrLockAcquisition = apperrors.New(apperrors.ErrCodeLockAcquisition, "获取图书标识锁失败")

	// ErrMappingNotFound 外部标识映射不存在
	ErrMappingNotFound = apperrors.New(apperrors.ErrCodeMappingNotFound, "外部标识映射不存在")

	// ErrSlugTaken 插入时slug唯一约束冲突，换下一个候选重试
	ErrSlugTaken = apperrors.New(apperrors.ErrCodeSlugTaken, "slug已被占用")

	// ErrNotClustered 图书不属于任何作品簇
	ErrNotClustered = apperrors.New(apperrors.ErrCodeNotFound, "图书不属于任何作品簇")
)

// LockError 包装锁后端错误，错误码与ErrLockAcquisition相同
func LockError(err error) error {
	return apperrors.WrapCode(err, apperrors.ErrCodeLockAcquisition, "获取图书标识锁失败")
}

// PersistenceError 包装写入阶段的错误；已经是AppError的原样返回
func PersistenceError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	return apperrors.WrapCode(err, apperrors.ErrCodeDatabaseError, "图书写入失败")
}
