package matchsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapta o zap para a interface cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler é o dono da goroutine do job: criado no init, parado no shutdown.
type Scheduler struct {
	log  *zap.Logger
	cron *cron.Cron
	job  *Job

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.Mutex
	wg      sync.WaitGroup
}

// NewScheduler agenda job com a expressão informada (ex.: "@every 30s").
// Ciclos sobrepostos são pulados e panics são recuperados.
func NewScheduler(log *zap.Logger, job *Job, schedule string) (*Scheduler, error) {
	cl := cronLogger{s: log.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{log: log, cron: c, job: job, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule match sync %q: %w", schedule, err)
	}
	return s, nil
}

// tick nunca sobrepõe ciclos, venham eles do cron ou do Start.
func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		return
	}
	defer s.running.Unlock()
	_, _ = s.job.SyncOnce(s.ctx)
}

// Start dispara um ciclo imediato e depois segue o agendamento.
func (s *Scheduler) Start() {
	s.log.Info("match sync scheduler started", zap.String("event_key", s.job.EventKey))
	s.cron.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick()
	}()
}

// Stop cancela o ciclo corrente e espera ele terminar ou ctx expirar.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("match sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("match sync stop: %w", ctx.Err())
	}
}
