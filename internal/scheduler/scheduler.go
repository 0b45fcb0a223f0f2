package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron *cron.Cron
	orch *Orchestrator

	// StartupDelay 启动后首轮采集的延迟，避免与首屏请求争抢资源；<0 表示不做首轮采集
	StartupDelay time.Duration

	// gate 容量为 1：运行中再来的触发最多排队一次，其余合并
	gate    chan struct{}
	runMu   sync.Mutex
	running atomic.Bool

	mu   sync.Mutex
	last *RunSummary

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	timer    *time.Timer
}

func New(spec string, orch *Orchestrator) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:         c,
		orch:         orch,
		StartupDelay: 15 * time.Second,
		gate:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
	}

	_, err := c.AddFunc(spec, func() {
		if !s.Trigger() {
			log.Println("cron: collect job already queued, skip")
		}
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Start 启动 cron 与后台执行协程；ctx 取消后正在进行的一轮会尽快结束
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)

	s.cron.Start()
	if s.StartupDelay >= 0 {
		s.timer = time.AfterFunc(s.StartupDelay, func() { s.Trigger() })
	}
}

// Stop 停止接受新的触发，并等待正在进行的一轮结束；可重复调用
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		<-s.cron.Stop().Done()
		close(s.quit)
	})
	s.wg.Wait()
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// Trigger 请求一轮采集，不阻塞；已有一轮在排队时返回 false
func (s *Scheduler) Trigger() bool {
	select {
	case s.gate <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-s.gate:
			// 已停止时丢弃排队中的触发
			if s.stopped() || ctx.Err() != nil {
				return
			}
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("collect job error: %v", err)
			}
		}
	}
}

// RunOnce 同步执行一轮采集，与后台触发的采集互斥
func (s *Scheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	summary, err := s.orch.RunOnce(ctx)
	if err != nil {
		return summary, err
	}

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
	return summary, nil
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastSummary 最近一轮成功采集的汇总，尚未采集过时返回 false
func (s *Scheduler) LastSummary() (RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunSummary{}, false
	}
	return *s.last, true
}
