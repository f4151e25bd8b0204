package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"patrolwatch/internal/alerts"
	"patrolwatch/internal/clock"
	"patrolwatch/internal/config"
	"patrolwatch/internal/logging"
	"patrolwatch/internal/metrics"
	"patrolwatch/internal/model"
	"patrolwatch/internal/query"
	"patrolwatch/internal/simrand"
	"patrolwatch/internal/stats"
	"patrolwatch/internal/telemetry"
)

var ErrDeviceNotFound = errors.New("device not found")

// Engine owns the live fleet and alert feed. Every change produces a new
// versioned snapshot that is pushed to subscribers.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Store
	alerts  *alerts.Store
	gen     *alerts.Generator
	clock   clock.Clock
	rng     simrand.Source
	cfg     atomic.Value

	mu         sync.RWMutex
	devices    []model.Device
	roster     []model.RosterEntry
	version    uint64
	lastReason model.SnapshotReason
	lastAt     time.Time

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int

	intervalCh chan time.Duration
	interval   atomic.Int64
}

type subscriber struct {
	ch chan model.Snapshot
}

// NewEngine seeds a generated fleet and its alert history. Nil dependencies
// fall back to the real clock, a source seeded from cfg and fresh stores.
func NewEngine(cfg *config.Config, logger *slog.Logger, metricsStore *metrics.Store, alertsStore *alerts.Store, clk clock.Clock, rng simrand.Source) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if rng == nil {
		rng = simrand.New(cfg.Simulation.Seed)
	}
	if metricsStore == nil {
		metricsStore = metrics.NewStore(clk.Now())
	}
	if alertsStore == nil {
		alertsStore = alerts.NewStore(cfg.Alerts.FeedLimit)
	}
	// Readers draw synthetic latency concurrently, so the source is shared under a lock.
	locked := simrand.NewLocked(rng)
	e := &Engine{
		logger:     logger,
		metrics:    metricsStore,
		alerts:     alertsStore,
		gen:        alerts.NewGenerator(generatorOptions(cfg), locked),
		clock:      clk,
		rng:        locked,
		subs:       make(map[int]*subscriber),
		intervalCh: make(chan time.Duration, 1),
	}
	e.cfg.Store(cfg)
	e.mu.Lock()
	e.seedLocked(cfg)
	e.commitLocked(model.ReasonSeed)
	e.mu.Unlock()
	return e
}

func generatorOptions(cfg *config.Config) alerts.GeneratorOptions {
	return alerts.GeneratorOptions{
		Probability: cfg.Simulation.DeviceAlertProbability,
		Lookback:    cfg.Simulation.AlertLookback,
	}
}

func fleetOptions(cfg *config.Config) telemetry.FleetOptions {
	return telemetry.FleetOptions{
		Size:      cfg.Fleet.Size,
		Regions:   cfg.Fleet.Regions,
		CenterLat: cfg.Fleet.CenterLat,
		CenterLng: cfg.Fleet.CenterLng,
		Spread:    cfg.Fleet.Spread,
	}
}

// UpdateConfig applies alert probabilities and the tick interval. Fleet
// settings only take effect on the next Reset.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	prev := e.config()
	e.cfg.Store(cfg)
	e.gen.SetOptions(generatorOptions(cfg))
	if cfg.Simulation.TickInterval > 0 && cfg.Simulation.TickInterval != prev.Simulation.TickInterval {
		select {
		case <-e.intervalCh:
		default:
		}
		e.intervalCh <- cfg.Simulation.TickInterval
	}
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// SetRoster makes the fleet identities come from entries and re-seeds.
// An empty roster switches back to the generated fleet.
func (e *Engine) SetRoster(entries []model.RosterEntry) model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roster = append([]model.RosterEntry(nil), entries...)
	e.seedLocked(e.config())
	return e.commitLocked(model.ReasonSeed)
}

// Run ticks on the clock until ctx is done. Ticks never overlap.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.config().Simulation.TickInterval
	ticker := e.clock.NewTicker(interval)
	e.interval.Store(int64(interval))
	defer func() {
		ticker.Stop()
	}()
	e.logger.Info("scheduler started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C():
			e.Tick()
		case d := <-e.intervalCh:
			ticker.Stop()
			ticker = e.clock.NewTicker(d)
			e.interval.Store(int64(d))
			e.logger.Info("tick interval changed", "interval", d.String())
		}
	}
}

// Tick advances the simulation once. Devices are replaced with perturbed
// copies and, by chance, the newest alert raised against the previous
// readings is put at the head of the feed.
func (e *Engine) Tick() model.Snapshot {
	cfg := e.config()
	started := time.Now()

	e.mu.Lock()
	now := e.clock.Now()
	prev := e.devices
	e.devices = telemetry.PerturbAll(prev, e.rng, now)

	raised, dropped := 0, 0
	var head model.Alert
	if simrand.Chance(e.rng, cfg.Simulation.TickAlertProbability) {
		if fresh := e.gen.Generate(prev, now); len(fresh) > 0 {
			head = fresh[0]
			if e.alerts.Len() >= e.alerts.Limit() {
				dropped = 1
			}
			e.alerts.Prepend(head)
			raised = 1
		}
	}
	snap := e.commitLocked(model.ReasonTick)
	e.mu.Unlock()

	e.metrics.RecordTick(now, time.Since(started), raised, dropped)
	if raised > 0 {
		e.logger.Info("alert raised",
			"alert_id", head.ID,
			"device_id", head.DeviceID,
			"level", head.Level,
			"message", head.Message,
		)
	}
	e.logger.Debug("tick", "version", snap.Version, "devices", len(snap.Devices), "alerts", len(snap.Alerts))
	return snap
}

// Acknowledge flags an alert. It reports whether anything changed; unknown
// and already acknowledged ids are ignored.
func (e *Engine) Acknowledge(id string) bool {
	e.mu.Lock()
	changed := e.alerts.Acknowledge(id)
	if changed {
		e.commitLocked(model.ReasonAcknowledge)
	}
	e.mu.Unlock()
	if changed {
		e.metrics.RecordAcknowledge()
		e.logger.Info("alert acknowledged", "alert_id", id)
	}
	return changed
}

// Reset throws the fleet and feed away and seeds new ones.
func (e *Engine) Reset() model.Snapshot {
	e.mu.Lock()
	e.seedLocked(e.config())
	snap := e.commitLocked(model.ReasonReset)
	e.mu.Unlock()
	e.metrics.RecordReset()
	e.logger.Info("fleet reset", "devices", len(snap.Devices), "alerts", len(snap.Alerts))
	return snap
}

func (e *Engine) ClearAlerts() model.Snapshot {
	e.mu.Lock()
	e.alerts.Clear()
	snap := e.commitLocked(model.ReasonClear)
	e.mu.Unlock()
	e.logger.Info("alert feed cleared")
	return snap
}

func (e *Engine) seedLocked(cfg *config.Config) {
	now := e.clock.Now()
	if len(e.roster) > 0 {
		e.devices = telemetry.FromRoster(e.roster, cfg.Fleet.Regions, e.rng, now)
	} else {
		e.devices = telemetry.GenerateFleet(fleetOptions(cfg), e.rng, now)
	}
	e.alerts.Replace(e.gen.Seed(e.devices, now))
}

// commitLocked bumps the version and pushes the new state. Callers hold mu
// for writing so subscribers see versions in order.
func (e *Engine) commitLocked(reason model.SnapshotReason) model.Snapshot {
	e.version++
	e.lastReason = reason
	e.lastAt = e.clock.Now()
	snap := e.snapshotLocked()
	e.broadcast(snap)
	return snap
}

func (e *Engine) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		Version: e.version,
		Reason:  e.lastReason,
		At:      e.lastAt,
		Devices: model.CloneDevices(e.devices),
		Alerts:  e.alerts.List(0),
	}
}

func (e *Engine) Snapshot() model.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) Devices() []model.Device {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return model.CloneDevices(e.devices)
}

func (e *Engine) Device(id string) (model.Device, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range e.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return model.Device{}, ErrDeviceNotFound
}

func (e *Engine) Alerts() []model.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.alerts.List(0)
}

func (e *Engine) NetworkStats() []model.NetworkStat {
	return stats.Aggregate(e.Devices(), e.rng)
}

func (e *Engine) Query(f model.Filter) []model.Device {
	return query.Filter(e.Devices(), f)
}

func (e *Engine) Summary() model.Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return stats.Summarize(e.devices, e.alerts.List(0))
}

func (e *Engine) Metrics() metrics.Stats {
	return e.metrics.Get()
}

// Subscribe returns a channel receiving every snapshot from now on. A slow
// reader only loses stale snapshots; the newest one is always kept. cancel
// closes the channel and may be called more than once.
func (e *Engine) Subscribe(buffer int) (<-chan model.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan model.Snapshot, buffer)}
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = sub
	e.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			close(sub.ch)
			e.subMu.Unlock()
		})
	}
	return sub.ch, cancel
}

func (e *Engine) Subscribers() int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	return len(e.subs)
}

func (e *Engine) broadcast(snap model.Snapshot) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, sub := range e.subs {
		own := snap
		own.Devices = model.CloneDevices(snap.Devices)
		own.Alerts = model.CloneAlerts(snap.Alerts)
		select {
		case sub.ch <- own:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- own:
		default:
		}
		e.metrics.RecordSnapshotDropped()
	}
}
