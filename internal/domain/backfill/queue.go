// Package backfill 进程内的回填任务队列
//
// 队列和去重集合由同一个Queue持有、同一把锁保护：
// 一个键在去重集合中，当且仅当它在队列里或者正在被处理。
// 状态只属于当前进程，多实例部署时各实例独立去重。
package backfill

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/xiebiao/bookcatalog/pkg/metrics"
)

// Task 一次回填抓取
type Task struct {
	Source     string
	SourceID   string
	Priority   int // 数值越小越优先
	Attempts   int
	EnqueuedAt time.Time

	seq uint64
}

// Key 去重键 source|sourceId
func (t Task) Key() string {
	return t.Source + "|" + t.SourceID
}

// taskHeap 按(Priority, seq)排序的小顶堆，同优先级先进先出
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*Task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Queue 优先级 + 幂等的任务队列
type Queue struct {
	mu       sync.Mutex
	tasks    taskHeap
	keys     map[string]struct{}
	seq      uint64
	capacity int
	signal   chan struct{} // 有任务可取（容量1，多次通知合并）
	now      func() time.Time
}

// NewQueue capacity<=0表示不限长度
func NewQueue(capacity int) *Queue {
	return &Queue{
		keys:     make(map[string]struct{}),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Enqueue 新入队返回true；同一(source, sourceId)已在队列中或正在处理时返回false
func (q *Queue) Enqueue(source, sourceID string, priority int) bool {
	t := &Task{Source: source, SourceID: sourceID, Priority: priority}
	if source == "" || sourceID == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := t.Key()
	if _, ok := q.keys[key]; ok {
		return false
	}
	q.keys[key] = struct{}{}
	if !q.offerLocked(t) {
		// 入队被拒绝时回滚去重键，否则这个键会被永久阻塞
		delete(q.keys, key)
		return false
	}
	return true
}

// Take 阻塞直到有任务可取；ctx取消时返回ctx.Err()，不取走任何任务
// 已取消的等待者可能抢到唤醒信号，退出前把信号转交给其它等待者
func (q *Queue) Take(ctx context.Context) (Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			q.passWakeup()
			return Task{}, err
		}
		if t, ok := q.TryTake(); ok {
			return t, nil
		}
		select {
		case <-ctx.Done():
			q.passWakeup()
			return Task{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// TryTake 非阻塞取任务
func (q *Queue) TryTake() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tasks.Len() == 0 {
		return Task{}, false
	}
	t := heap.Pop(&q.tasks).(*Task)
	metrics.SetBackfillQueueDepth(q.tasks.Len())
	// 还有剩余任务时继续唤醒其它等待者
	if q.tasks.Len() > 0 {
		q.notifyLocked()
	}
	return *t, true
}

// MarkCompleted 任务结束（成功或放弃重试），释放去重键
func (q *Queue) MarkCompleted(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.keys, t.Key())
}

// Retry 重新入队，保留去重键；调用方负责递增Attempts
// 重新入队被拒绝时释放去重键并返回false
func (q *Queue) Retry(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := t.Key()
	q.keys[key] = struct{}{}
	task := t
	if !q.offerLocked(&task) {
		delete(q.keys, key)
		return false
	}
	return true
}

// Len 排队中的任务数（不含正在处理的）
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Pending 去重集合大小（排队中 + 处理中）
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

func (q *Queue) offerLocked(t *Task) bool {
	if q.capacity > 0 && q.tasks.Len() >= q.capacity {
		return false
	}
	q.seq++
	t.seq = q.seq
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = q.now()
	}
	heap.Push(&q.tasks, t)
	metrics.SetBackfillQueueDepth(q.tasks.Len())
	q.notifyLocked()
	return true
}

func (q *Queue) passWakeup() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tasks.Len() > 0 {
		q.notifyLocked()
	}
}

func (q *Queue) notifyLocked() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
