package backfill

import (
	"context"
	"strings"

	"github.com/xiebiao/bookcatalog/internal/domain/backfill"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
)

// ScheduleUseCase 手动安排回填
type ScheduleUseCase struct {
	queue *backfill.Queue
}

// NewScheduleUseCase 创建用例
func NewScheduleUseCase(queue *backfill.Queue) *ScheduleUseCase {
	return &ScheduleUseCase{queue: queue}
}

// ScheduleRequest 回填请求
type ScheduleRequest struct {
	Source   string // GOOGLE_BOOKS / OPEN_LIBRARY
	SourceID string // 数据源记录ID或"isbn:"前缀的ISBN
	Priority int    // 0表示使用手动优先级
}

// ScheduleResponse 回填响应
type ScheduleResponse struct {
	Enqueued bool `json:"enqueued"` // false表示同一任务已在队列中或正在处理
	Pending  int  `json:"pending"`
}

// Execute 入队；重复提交不报错
func (uc *ScheduleUseCase) Execute(ctx context.Context, req ScheduleRequest) (*ScheduleResponse, error) {
	source := strings.ToUpper(strings.TrimSpace(req.Source))
	sourceID := strings.TrimSpace(req.SourceID)
	if source == "" || sourceID == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidParams, "source和source_id不能为空")
	}
	priority := req.Priority
	if priority <= 0 {
		priority = PriorityManual
	}
	return &ScheduleResponse{
		Enqueued: uc.queue.Enqueue(source, sourceID, priority),
		Pending:  uc.queue.Pending(),
	}, nil
}
