package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task работа одного срабатывания триггера. Ошибки задача обрабатывает сама.
type Task func(ctx context.Context)

// TriggerStats счётчики одного триггера
type TriggerStats struct {
	Runs         uint64        `json:"runs"`
	Skipped      uint64        `json:"skipped"` // срабатывания, пропущенные из-за Suspend
	Panics       uint64        `json:"panics"`
	LastStart    time.Time     `json:"lastStart"`
	LastDuration time.Duration `json:"lastDurationNs"`
}

type trigger struct {
	name      string
	interval  time.Duration
	task      Task
	suspended atomic.Bool

	mu    sync.Mutex
	stats TriggerStats
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

var (
	ErrNotIdle          = errors.New("poller: scheduler already started")
	ErrUnknownTrigger   = errors.New("poller: unknown trigger")
	ErrSchedulerStopped = errors.New("poller: scheduler stopped")
)

// Scheduler владеет независимыми периодическими триггерами.
//
// Каждый триггер крутится в своей горутине: первое срабатывание сразу после
// Start, дальше по time.Ticker с фиксированным шагом. Задача выполняется
// внутри цикла, поэтому один триггер никогда не работает сам с собой
// параллельно; тики, пришедшие во время работы, схлопываются тикером.
type Scheduler struct {
	mu       sync.Mutex
	triggers []*trigger
	state    state

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{}
}

// Add регистрирует триггер. Только до Start.
func (s *Scheduler) Add(name string, interval time.Duration, task Task) error {
	if name == "" {
		return errors.New("poller: trigger name required")
	}
	if interval <= 0 {
		return fmt.Errorf("poller: trigger %s: interval must be > 0", name)
	}
	if task == nil {
		return fmt.Errorf("poller: trigger %s: task required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateIdle {
		return ErrNotIdle
	}
	for _, t := range s.triggers {
		if t.name == name {
			return fmt.Errorf("poller: trigger %s already registered", name)
		}
	}

	s.triggers = append(s.triggers, &trigger{name: name, interval: interval, task: task})
	return nil
}

// Start переводит планировщик из idle в running. Повторный запуск запрещён.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrNotIdle
	case stateStopped:
		return ErrSchedulerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = stateRunning

	for _, t := range s.triggers {
		s.wg.Add(1)
		go s.loop(ctx, t)
		slog.Info("Trigger started", "trigger", t.name, "interval", t.interval)
	}
	return nil
}

// Stop отменяет контекст задач и ждёт завершения циклов.
// Задача, застрявшая в сетевом вызове без учёта ctx, задержит Stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateStopped
		s.mu.Unlock()
		return
	}
	s.state = stateStopped
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Suspend пропускает срабатывания триггера до Resume. Текущее выполнение не прерывается.
func (s *Scheduler) Suspend(name string) error {
	t := s.find(name)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	t.suspended.Store(true)
	slog.Info("Trigger suspended", "trigger", name)
	return nil
}

func (s *Scheduler) Resume(name string) error {
	t := s.find(name)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	t.suspended.Store(false)
	slog.Info("Trigger resumed", "trigger", name)
	return nil
}

// Stats возвращает копию счётчиков триггера
func (s *Scheduler) Stats(name string) (TriggerStats, bool) {
	t := s.find(name)
	if t == nil {
		return TriggerStats{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats, true
}

func (s *Scheduler) find(name string) *trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.triggers {
		if t.name == name {
			return t
		}
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t *trigger) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// Первое срабатывание сразу
	s.fire(ctx, t)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.fire(ctx, t)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, t *trigger) {
	if t.suspended.Load() {
		t.mu.Lock()
		t.stats.Skipped++
		t.mu.Unlock()
		slog.Debug("Trigger fire skipped", "trigger", t.name)
		return
	}

	start := time.Now()
	panicked := run(ctx, t)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.stats.Runs++
	t.stats.LastStart = start
	t.stats.LastDuration = elapsed
	if panicked {
		t.stats.Panics++
	}
	t.mu.Unlock()

	if elapsed > t.interval {
		slog.Warn("Trigger overran its interval", "trigger", t.name, "took", elapsed, "interval", t.interval)
	}
}

// run выполняет задачу; паника не должна останавливать цикл триггера
func run(ctx context.Context, t *trigger) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			slog.Error("Trigger task panicked", "trigger", t.name, "panic", r)
		}
	}()
	t.task(ctx)
	return false
}
