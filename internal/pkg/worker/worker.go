package worker

import (
	"context"
	"order_lifecycle/pkg/logger"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task 异步副作用任务 (通知、退款重试)
type Task struct {
	Name     string // 任务类型，例如 notify, refund
	Key      string // 业务主键，用于日志
	Run      func(ctx context.Context) error
	MaxRetry int // 0 表示使用池默认值
	Attempt  int // 已重试次数
}

// Options 工作池配置
type Options struct {
	Workers     int
	QueueSize   int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	TaskTimeout time.Duration
	// OnDeadLetter 任务最终失败或被丢弃时回调
	OnDeadLetter func(task Task, err error)
}

type WorkerPool struct {
	TaskQueue  chan Task
	RetryQueue chan Task // 重试队列
	opts       Options

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewWorkerPool(opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		TaskQueue:  make(chan Task, opts.QueueSize),
		RetryQueue: make(chan Task, opts.QueueSize/2+1),
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	logger.Log.Info("worker pool started", zap.Int("workers", p.opts.Workers))
}

// Stop 停止接收任务并等待工作协程退出，未完成的任务进入死信
func (p *WorkerPool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.wg.Wait()
	for {
		select {
		case task := <-p.TaskQueue:
			p.deadLetter(task, context.Canceled)
		case task := <-p.RetryQueue:
			p.deadLetter(task, context.Canceled)
		default:
			return
		}
	}
}

// Submit 非阻塞入队，队列已满或已停止时返回 false
func (p *WorkerPool) Submit(task Task) bool {
	if p.stopped.Load() {
		p.deadLetter(task, context.Canceled)
		return false
	}
	select {
	case p.TaskQueue <- task:
		return true
	default:
		logger.Log.Warn("worker pool queue full, dropping task",
			zap.String("task", task.Name), zap.String("key", task.Key))
		p.deadLetter(task, nil)
		return false
	}
}

// QueueDepth 当前排队任务数
func (p *WorkerPool) QueueDepth() int {
	return len(p.TaskQueue) + len(p.RetryQueue)
}

// Backoff 第 attempt 次重试前的等待时间: base * 2^(attempt-1)，不超过 MaxBackoff
func (p *WorkerPool) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.opts.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.opts.MaxBackoff {
			return p.opts.MaxBackoff
		}
	}
	return d
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.TaskQueue:
			p.process(id, task)
		}
	}
}

func (p *WorkerPool) process(id int, task Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.TaskTimeout)
	err := task.Run(ctx)
	cancel()
	if err == nil {
		return
	}

	maxRetry := task.MaxRetry
	if maxRetry <= 0 {
		maxRetry = p.opts.MaxRetry
	}

	logger.Log.Warn("task failed",
		zap.Int("worker", id),
		zap.String("task", task.Name),
		zap.String("key", task.Key),
		zap.Int("attempt", task.Attempt),
		zap.Error(err))

	// 如果未达到最大重试次数，加入重试队列
	if task.Attempt < maxRetry {
		task.Attempt++
		select {
		case p.RetryQueue <- task:
		default:
			logger.Log.Error("retry queue full, task dropped",
				zap.String("task", task.Name), zap.String("key", task.Key))
			p.deadLetter(task, err)
		}
		return
	}
	p.deadLetter(task, err)
}

func (p *WorkerPool) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.RetryQueue:
			// 延迟重试，避免立即重试；计时器不阻塞后续任务
			t := task
			time.AfterFunc(p.Backoff(t.Attempt), func() { p.requeue(t) })
		}
	}
}

func (p *WorkerPool) requeue(task Task) {
	if p.stopped.Load() {
		p.deadLetter(task, context.Canceled)
		return
	}
	select {
	case p.TaskQueue <- task:
	default:
		logger.Log.Error("main queue full, retry dropped",
			zap.String("task", task.Name), zap.String("key", task.Key))
		p.deadLetter(task, nil)
	}
}

func (p *WorkerPool) deadLetter(task Task, err error) {
	logger.Log.Error("task failed permanently",
		zap.String("task", task.Name),
		zap.String("key", task.Key),
		zap.Int("attempt", task.Attempt),
		zap.Error(err))
	if p.opts.OnDeadLetter != nil {
		p.opts.OnDeadLetter(task, err)
	}
}
