package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// Job 一次交接报告生成任务
type Job struct {
	ReportID   uint
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
	Timeout    time.Duration
}

// ReportExecutor 报告生成的实际执行方
type ReportExecutor interface {
	ExecuteReport(ctx context.Context, reportID uint) error
}

// Dispatcher 交接报告后台调度器
// 主队列 + 重试队列 + ants 协程池；报告生成是短任务，超时与退避都按分钟级收紧
type Dispatcher struct {
	jobQueue    *jobQueue
	retryQueue  *jobQueue
	retryTicker *time.Ticker

	pool *ants.Pool

	executor ReportExecutor

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	activeCancellations map[uint]context.CancelFunc
	cancelMutex         sync.Mutex
}

var (
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
	ErrQueueFull         = errors.New("job queue is full")
)

// NewReportJob
// 说明：创建一个报告生成任务，初始化重试次数与超时
// 参数：reportID 报告ID
// 返回：*Job 初始化后的任务对象
func NewReportJob(reportID uint) *Job {
	return &Job{
		ReportID:   reportID,
		EnqueuedAt: time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
		Timeout:    2 * time.Minute,
	}
}

func NewDispatcher(maxWorkers int, executor ReportExecutor) (*Dispatcher, error) {
	ctx, cancel := context.WithCancel(context.Background())

	jobQ := newJobQueue(120)
	retryQ := newJobQueue(120)

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		cancel()
		return nil, err
	}

	return &Dispatcher{
		jobQueue:            jobQ,
		retryQueue:          retryQ,
		retryTicker:         time.NewTicker(500 * time.Millisecond),
		pool:                pool,
		activeCancellations: make(map[uint]context.CancelFunc),
		executor:            executor,
		ctx:                 ctx,
		cancel:              cancel,
	}, nil
}

func (d *Dispatcher) Start() {
	go d.dispatchLoop()
	go d.processRetryQueue()
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		klog.V(6).Infof("Dispatcher stopping...")

		// 1. 停止接收新任务，关闭队列
		d.cancel()
		d.jobQueue.Close()
		d.retryQueue.Close()

		// 2. 等待队列中待执行的任务全部分发完毕
		for {
			if d.jobQueue.Len() == 0 && d.retryQueue.Len() == 0 {
				break
			}
			time.Sleep(100 * time.Millisecond)
			klog.V(6).Infof("Waiting for queues to empty: main=%d, retry=%d", d.jobQueue.Len(), d.retryQueue.Len())
		}

		// 3. 等待正在执行的报告生成完成，超时上限覆盖单任务超时
		runningJobs := d.pool.Running()
		if runningJobs > 0 {
			klog.V(6).Infof("Waiting for %d running jobs to complete (timeout: 3min)", runningJobs)
		}

		timeout := 3 * time.Minute
		rErr := d.pool.ReleaseTimeout(timeout)
		if rErr == nil {
			klog.V(6).Infof("All running jobs completed before timeout")
		} else {
			klog.Warningf("Timeout after %v: some running jobs may be forced to stop", timeout)
		}

		klog.V(6).Infof("Dispatcher stopped completely")
	})
}

func (d *Dispatcher) EnqueueJob(job *Job) error {
	select {
	case <-d.ctx.Done():
		return ErrDispatcherStopped
	default:
	}

	if err := d.jobQueue.Enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("Job queue full: reportID=%d", job.ReportID)
		}
		return err
	}
	klog.V(6).Infof("Job enqueued: reportID=%d", job.ReportID)
	return nil
}

func (d *Dispatcher) registerCancel(reportID uint, cancel context.CancelFunc) {
	d.cancelMutex.Lock()
	defer d.cancelMutex.Unlock()
	d.activeCancellations[reportID] = cancel
}

func (d *Dispatcher) unregisterCancel(reportID uint) {
	d.cancelMutex.Lock()
	defer d.cancelMutex.Unlock()
	delete(d.activeCancellations, reportID)
}

// CancelJob 取消在执行中的报告生成
func (d *Dispatcher) CancelJob(reportID uint) bool {
	d.cancelMutex.Lock()
	cancel, ok := d.activeCancellations[reportID]
	d.cancelMutex.Unlock()
	if !ok {
		return false
	}

	klog.V(6).Infof("Cancelling job: reportID=%d", reportID)
	cancel()
	return true
}

func (d *Dispatcher) dispatchLoop() {
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			job, ok := d.jobQueue.Dequeue()
			if !ok {
				continue
			}
			d.tryDispatch(job)
		}
	}
}

func (d *Dispatcher) processRetryQueue() {
	defer d.retryTicker.Stop()
	// 协程级Panic防护，避免重试循环退出
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Retry queue loop panic recovered: %v", r)
		}
	}()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.retryTicker.C:
			for i := 0; i < 10; i++ {
				job, ok := d.retryQueue.Dequeue()
				if !ok {
					break
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							klog.Errorf("Retry dispatch panic: reportID=%d, err=%v",
								job.ReportID, r)
						}
					}()
					d.tryDispatch(job)
				}()
			}
		}
	}
}

// tryDispatch
// 说明：尝试把任务提交到协程池；提交失败时按重试上限计数后转入重试队列
// 参数：job 待执行的任务
func (d *Dispatcher) tryDispatch(job *Job) {
	if job.MaxRetries <= 0 || job.RetryCount >= job.MaxRetries {
		klog.Warningf("任务重试已达上限，放弃入队: reportID=%d, retry=%d/%d", job.ReportID, job.RetryCount, job.MaxRetries)
		return
	}
	if err := d.pool.Submit(func() {
		d.executeJob(job)
	}); err == nil {
		return
	} else {
		klog.Errorf("提交任务到协程池失败: reportID=%d, err=%v", job.ReportID, err)
	}

	job.RetryCount++
	if err := d.retryQueue.Enqueue(job); err != nil {
		klog.Errorf("任务重试入队失败: reportID=%d, err=%v", job.ReportID, err)
	}
}

// executeJob 统一控制重试与退避
func (d *Dispatcher) executeJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Job panic recovered: reportID=%d, err=%v", job.ReportID, r)
			d.unregisterCancel(job.ReportID)
		}
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	runCtx, manualCancel := context.WithCancel(ctx)
	defer manualCancel()

	d.registerCancel(job.ReportID, manualCancel)
	defer d.unregisterCancel(job.ReportID)

	for i := job.RetryCount; i < job.MaxRetries; i++ {
		job.RetryCount = i

		err := d.executor.ExecuteReport(runCtx, job.ReportID)
		if err == nil {
			klog.V(6).Infof("Job completed: reportID=%d", job.ReportID)
			return
		}

		backoff := time.Second << i
		if backoff > time.Minute {
			backoff = time.Minute
		}

		klog.Warningf("任务重试失败: reportID=%d, retry=%d/%d, err=%v, backoff=%v",
			job.ReportID, i+1, job.MaxRetries, err, backoff)

		select {
		case <-runCtx.Done():
			klog.Warningf("任务被取消或超时: reportID=%d", job.ReportID)
			return
		case <-time.After(backoff):
		}
	}

	klog.Errorf("任务执行失败且超过重试上限: reportID=%d", job.ReportID)
}

// QueueStatus 队列运行状态
type QueueStatus struct {
	QueueLength   int `json:"queue_length"`
	RetryLength   int `json:"retry_length"`
	ActiveWorkers int `json:"active_workers"`
}

func (d *Dispatcher) GetQueueStatus() *QueueStatus {
	return &QueueStatus{
		QueueLength:   d.jobQueue.Len(),
		RetryLength:   d.retryQueue.Len(),
		ActiveWorkers: d.pool.Running(),
	}
}

// -----------------------------
// JobQueue (Ring Buffer) + Reject New
// -----------------------------
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, maxSize),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrDispatcherStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull // Reject New
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *jobQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}

// -------------------- Global Dispatcher --------------------
var (
	globalDispatcher *Dispatcher
	dispatcherOnce   sync.Once
)

func InitGlobalDispatcher(maxWorkers int, executor ReportExecutor) error {
	var initErr error
	dispatcherOnce.Do(func() {
		disp, err := NewDispatcher(maxWorkers, executor)
		if err != nil {
			initErr = err
			return
		}
		globalDispatcher = disp
		globalDispatcher.Start()
		klog.V(6).Infof("Global dispatcher initialized: maxWorkers=%d", maxWorkers)
	})
	return initErr
}

func GetGlobalDispatcher() *Dispatcher {
	return globalDispatcher
}

func ShutdownGlobalDispatcher() {
	if globalDispatcher != nil {
		globalDispatcher.Stop()
		klog.V(6).Infof("Global dispatcher shutdown")
	}
}
