// Package poller drives a renderer from periodic region scans.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zerolethanh/netspy/internal/record"
)

// State is the lifecycle state of a Poller.
type State int32

const (
	Idle    State = iota // not started
	Polling              // scanning on every cycle until stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	}
	return "unknown"
}

// Reader is the consumer side of a region.
type Reader interface {
	ReadAllRecords() []record.UserRecord
}

// Renderer displays the records of one cycle. It gets a fresh slice every
// cycle and should keep no state between calls beyond what it displays.
type Renderer interface {
	Render(records []record.UserRecord) error
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(records []record.UserRecord) error

func (f RenderFunc) Render(records []record.UserRecord) error {
	return f(records)
}

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = time.Second

// Poller scans a Reader and hands the result to a Renderer on a fixed
// cadence.
type Poller struct {
	reader   Reader
	renderer Renderer
	interval time.Duration
	log      *zap.Logger

	state  atomic.Int32
	cycles atomic.Uint64
}

// New returns an idle poller. A non-positive interval falls back to
// DefaultInterval.
func New(reader Reader, renderer Renderer, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		log.Warn("invalid poll interval, using default", zap.Duration("interval", interval), zap.Duration("default", DefaultInterval))
		interval = DefaultInterval
	}
	return &Poller{
		reader:   reader,
		renderer: renderer,
		interval: interval,
		log:      log,
	}
}

// Interval returns the polling cadence.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Cycles returns the number of completed poll cycles.
func (p *Poller) Cycles() uint64 {
	return p.cycles.Load()
}

// Poll runs one cycle: scan, then render. Render errors are logged and
// otherwise ignored.
func (p *Poller) Poll() {
	records := p.reader.ReadAllRecords()
	if err := p.renderer.Render(records); err != nil {
		p.log.Warn("render failed", zap.Int("records", len(records)), zap.Error(err))
	}
	p.cycles.Add(1)
	p.log.Debug("poll cycle", zap.Int("records", len(records)))
}

// Run polls once immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.state.Store(int32(Polling))
	p.log.Info("polling started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("polling stopped", zap.Uint64("cycles", p.Cycles()))
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}
