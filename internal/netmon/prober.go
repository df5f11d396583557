package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const probeTimeout = 5 * time.Second

// Prober feeds the Monitor from a backend health check. Each probe is
// bounded by a 5s context so a hung backend never wedges the loop.
type Prober struct {
	monitor  *Monitor
	probe    func(ctx context.Context) error
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewProber(monitor *Monitor, probe func(ctx context.Context) error, interval time.Duration, log zerolog.Logger) *Prober {
	return &Prober{
		monitor:  monitor,
		probe:    probe,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (p *Prober) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()
}

func (p *Prober) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Prober) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Prober) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := p.probe(probeCtx)
	online := err == nil
	if online != p.monitor.IsOnline() {
		p.log.Info().Bool("online", online).Msg("connectivity changed")
	}
	p.monitor.Set(online)
}
