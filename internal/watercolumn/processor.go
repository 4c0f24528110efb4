package watercolumn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/timeutil"
)

var logf = monitoring.Tagged("watercolumn")

// Snapshot is the result of one processing cycle. A published snapshot is
// never modified; readers may hold on to it freely.
type Snapshot struct {
	Seq            uint64             `json:"seq"`
	EnsembleNumber int                `json:"ensemble_number"`
	Record         string             `json:"record"`
	Average        Average            `json:"average"`
	SampleCount    int                `json:"sample_count"`
	Ship           ShipData           `json:"ship"`
	Bins           []BinRow           `json:"bins"`
	VelocityFrame  adcp.VelocityFrame `json:"velocity_frame"`
	HeadingSource  string             `json:"heading_source"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Sink receives the latest snapshot on every output tick.
type Sink interface {
	Emit(ctx context.Context, snap *Snapshot) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, snap *Snapshot) error

func (f SinkFunc) Emit(ctx context.Context, snap *Snapshot) error { return f(ctx, snap) }

// Processor runs the producer path (OnEnsemble) and the output path (OnTick)
// of the averager. The two paths only share the latest snapshot, which is
// swapped atomically.
type Processor struct {
	clock timeutil.Clock
	nav   *adcp.NavTracker

	// producer state
	mu     sync.Mutex
	cfg    Config
	window *Window
	ship   ShipTracker
	screen profileScreen
	seq    uint64

	snap   atomic.Pointer[Snapshot]
	period atomic.Int64

	sinkMu sync.RWMutex
	sinks  []Sink
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock sets the clock used for timestamps and the output ticker.
func WithClock(c timeutil.Clock) Option {
	return func(p *Processor) { p.clock = c }
}

// WithNavTracker attaches GPS navigation to ensembles that lack it.
func WithNavTracker(t *adcp.NavTracker) Option {
	return func(p *Processor) { p.nav = t }
}

// WithSinks registers output sinks.
func WithSinks(sinks ...Sink) Option {
	return func(p *Processor) { p.sinks = append(p.sinks, sinks...) }
}

// NewProcessor creates a processor with an empty window.
func NewProcessor(cfg Config, opts ...Option) (*Processor, error) {
	cfg = withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid averaging config: %w", err)
	}
	p := &Processor{
		clock:  timeutil.RealClock{},
		cfg:    cfg,
		window: NewWindow(cfg.MaxRunningAverageCount, cfg.DirectionMean),
	}
	p.period.Store(int64(cfg.OutputPeriod))
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func withDefaults(cfg Config) Config {
	if cfg.OutputPeriod == 0 {
		cfg.OutputPeriod = DefaultOutputPeriod
	}
	if cfg.VelocityFrame == "" {
		cfg.VelocityFrame = adcp.FrameEarth
	}
	if cfg.HeadingSource == "" {
		cfg.HeadingSource = DefaultHeadingSource
	}
	if cfg.DirectionMean == "" {
		cfg.DirectionMean = DirectionArithmetic
	}
	return cfg
}

// AddSink registers another output sink.
func (p *Processor) AddSink(s Sink) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Config returns the active configuration.
func (p *Processor) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// OnEnsemble processes one ensemble: profile screening, bin selection, water
// column average, ship data, window push and record formatting. The resulting
// snapshot replaces the previous one and is returned.
func (p *Processor) OnEnsemble(ens *adcp.Ensemble) *Snapshot {
	if p.nav != nil {
		p.nav.Attach(ens)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	vectors := p.screen.apply(ens, p.cfg)
	p.screen.remember(ens)
	minBin, maxBin := SelectBinRange(ens, p.cfg)
	avg := AverageVelocity(vectors, minBin, maxBin)
	ship := p.ship.Extract(ens)
	smoothed := p.window.Push(avg)
	count := p.window.Len()

	p.seq++
	snap := &Snapshot{
		Seq:            p.seq,
		EnsembleNumber: ens.EnsembleNumber,
		Record:         FormatRecord(ens.EnsembleNumber, smoothed, count),
		Average:        smoothed,
		SampleCount:    count,
		Ship:           ship,
		Bins:           WaterTable(vectors),
		VelocityFrame:  p.cfg.VelocityFrame,
		HeadingSource:  p.cfg.HeadingSource,
		UpdatedAt:      p.clock.Now(),
	}
	p.snap.Store(snap)
	return snap
}

// Snapshot returns the latest snapshot, or nil before the first ensemble.
func (p *Processor) Snapshot() *Snapshot {
	return p.snap.Load()
}

// OnTick emits the latest snapshot to every sink. The same snapshot is
// emitted again when no ensemble arrived since the previous tick. Sink
// failures are logged and do not stop the remaining sinks. Each Emit gets a
// context that expires after one output period; sinks that may block for
// longer belong behind Async.
func (p *Processor) OnTick(ctx context.Context) {
	snap := p.snap.Load()
	if snap == nil {
		return
	}

	p.sinkMu.RLock()
	sinks := append([]Sink(nil), p.sinks...)
	p.sinkMu.RUnlock()

	period := time.Duration(p.period.Load())
	for _, s := range sinks {
		p.emit(ctx, s, snap, period)
	}
}

func (p *Processor) emit(ctx context.Context, s Sink, snap *Snapshot, period time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, period)
	defer cancel()
	if err := s.Emit(ctx, snap); err != nil {
		logf("sink %T failed for ensemble %d: %v", s, snap.EnsembleNumber, err)
	}
}

// Reconfigure applies a new configuration. When only the capacity, output
// period or heading source change the window keeps its samples (trimmed to
// the new capacity); any change to how samples are selected starts a fresh
// window.
func (p *Processor) Reconfigure(cfg Config) error {
	cfg = withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid averaging config: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.sameSelection(cfg) {
		p.window.SetCapacity(cfg.MaxRunningAverageCount)
	} else {
		p.window = NewWindow(cfg.MaxRunningAverageCount, cfg.DirectionMean)
		logf("averaging selection changed, running average restarted")
	}
	p.cfg = cfg
	p.period.Store(int64(cfg.OutputPeriod))
	return nil
}

// ResetShipMax clears the all-time maximum ship speed.
func (p *Processor) ResetShipMax() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ship.Reset()
}

// Run calls OnTick at the configured output period until ctx is done.
// Period changes made through Reconfigure take effect on the next tick.
func (p *Processor) Run(ctx context.Context) error {
	period := time.Duration(p.period.Load())
	ticker := p.clock.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.OnTick(ctx)
			if d := time.Duration(p.period.Load()); d != period {
				period = d
				ticker.Reset(period)
			}
		}
	}
}

// Consume decodes ensemble lines from a serial subscription and feeds them
// to OnEnsemble until the channel closes or ctx is done. Undecodable lines
// are logged and skipped.
func (p *Processor) Consume(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			ens, ok, err := adcp.DecodeLine(line)
			if err != nil {
				logf("dropping ensemble line: %v", err)
				continue
			}
			if !ok {
				continue
			}
			p.OnEnsemble(ens)
		}
	}
}
