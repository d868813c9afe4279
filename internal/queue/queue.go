package queue

import (
	"context"
	"sync"
	"time"

	"humg.top/checkin_scheduler/internal/models"
)

// ResultQueue 签到结果的汇合队列
// 生产者可在任意 goroutine 中 Enqueue，消费者限时等待
// 条目与唤醒信号在同一把锁下维护，等待者被唤醒时一定有数据或已超时
type ResultQueue struct {
	mu    sync.Mutex
	items []models.CheckInOutcome
	ready chan struct{} // 有新条目时关闭并替换
}

// New 创建空队列
func New() *ResultQueue {
	return &ResultQueue{ready: make(chan struct{})}
}

// Enqueue 追加结果，从不阻塞
func (q *ResultQueue) Enqueue(outcome models.CheckInOutcome) {
	q.mu.Lock()
	q.items = append(q.items, outcome)
	close(q.ready)
	q.ready = make(chan struct{})
	q.mu.Unlock()
}

// DequeueWithTimeout 等待最早的结果，超时或 ctx 取消时返回 false 且不产生副作用
func (q *ResultQueue) DequeueWithTimeout(ctx context.Context, timeout time.Duration) (models.CheckInOutcome, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = models.CheckInOutcome{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
			// 可能被其他消费者抢先取走，重新检查
		case <-timer.C:
			return models.CheckInOutcome{}, false
		case <-ctx.Done():
			return models.CheckInOutcome{}, false
		}
	}
}

// Clear 丢弃全部待处理结果，返回丢弃条数
func (q *ResultQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len 当前待处理条数
func (q *ResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
