package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"patrolwatch/internal/model"
	"patrolwatch/internal/simrand"
)

const (
	MessageDistress = "Distress signal activated"

	lowBatteryThreshold = 20
)

// Messages is the stock catalog non-distress alerts draw from.
var Messages = []string{
	"Low battery warning",
	"Weak signal detected",
	"Device crossed geofence",
	"Network handover initiated",
	"Temperature threshold exceeded",
	MessageDistress,
}

type GeneratorOptions struct {
	// Probability that a given device raises an alert in one pass.
	Probability float64
	// Lookback bounds how far in the past an alert timestamp may fall.
	Lookback time.Duration
}

// Generator raises simulated alerts. IDs come from a sequence shared by
// every pass so a live alert never reuses the ID of an older one.
type Generator struct {
	mu   sync.Mutex
	opts GeneratorOptions
	rng  simrand.Source
	seq  int
}

func NewGenerator(opts GeneratorOptions, rng simrand.Source) *Generator {
	if opts.Lookback <= 0 {
		opts.Lookback = 10 * time.Minute
	}
	return &Generator{opts: opts, rng: rng}
}

func (g *Generator) SetOptions(opts GeneratorOptions) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if opts.Lookback <= 0 {
		opts.Lookback = g.opts.Lookback
	}
	g.opts = opts
}

// Seed builds the history shown at start-up. Some of it is already acknowledged.
func (g *Generator) Seed(devices []model.Device, now time.Time) []model.Alert {
	return g.generate(devices, now, true)
}

// Generate raises live alerts, which always start unacknowledged.
func (g *Generator) Generate(devices []model.Device, now time.Time) []model.Alert {
	return g.generate(devices, now, false)
}

func (g *Generator) generate(devices []model.Device, now time.Time, history bool) []model.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.Alert, 0)
	for _, d := range devices {
		if !simrand.Chance(g.rng, g.opts.Probability) {
			continue
		}
		message := MessageDistress
		if d.Status != model.StatusDistress {
			message = simrand.Pick(g.rng, Messages)
		}
		age := time.Duration(g.rng.Float64() * float64(g.opts.Lookback))
		acknowledged := false
		if history {
			acknowledged = g.rng.Float64() < 0.5
		}
		g.seq++
		out = append(out, model.Alert{
			ID:           fmt.Sprintf("ALT-%04d", g.seq),
			DeviceID:     d.ID,
			Level:        LevelFor(d),
			Message:      message,
			Timestamp:    now.Add(-age),
			Acknowledged: acknowledged,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// LevelFor grades an alert by the state of the device that raised it.
func LevelFor(d model.Device) model.Level {
	switch {
	case d.Status == model.StatusDistress:
		return model.LevelCritical
	case d.Battery < lowBatteryThreshold:
		return model.LevelWarning
	default:
		return model.LevelInfo
	}
}
