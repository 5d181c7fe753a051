package crawl

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires crawl passes on a cron schedule evaluated in UTC. A
// pass still running when the next tick arrives is not overlapped; the
// tick is skipped.
type Scheduler struct {
	cron    *cron.Cron
	running chan struct{}
}

// NewScheduler registers pass on the given standard 5-field cron
// expression. The default schedule fires at UTC hours 0, 6, 12 and 18.
func NewScheduler(schedule string, pass func(ctx context.Context)) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		running: make(chan struct{}, 1),
	}
	_, err := s.cron.AddFunc(schedule, func() {
		select {
		case s.running <- struct{}{}:
		default:
			log.Printf("[crawl] previous pass still running, skipping tick")
			return
		}
		defer func() { <-s.running }()
		pass(context.Background())
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins firing scheduled passes.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running <- struct{}{}
	<-s.running
}
