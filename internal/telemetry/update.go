// Package telemetry simulates the readings reported by patrol units.
package telemetry

import (
	"math"
	"time"

	"patrolwatch/internal/model"
	"patrolwatch/internal/simrand"
)

const (
	maxBatteryDrain = 0.5
	signalJitter    = 5.0
	minTemperature  = 20
	maxTemperature  = 50
	positionJitter  = 0.0005
)

// Perturb returns the next reading for d. Battery only drains, signal
// wanders within [0,100] and the position drifts by a few metres.
func Perturb(d model.Device, rng simrand.Source, now time.Time) model.Device {
	next := d
	next.Battery = clamp(d.Battery-simrand.Uniform(rng, 0, maxBatteryDrain), 0, 100)
	next.SignalStrength = clamp(d.SignalStrength+simrand.Uniform(rng, -signalJitter, signalJitter), 0, 100)
	next.Temperature = int(math.Floor(simrand.Uniform(rng, minTemperature, maxTemperature)))
	next.LastUpdate = now
	next.Location.Lat = d.Location.Lat + simrand.Uniform(rng, -positionJitter, positionJitter)
	next.Location.Lng = d.Location.Lng + simrand.Uniform(rng, -positionJitter, positionJitter)
	return next
}

// PerturbAll maps Perturb over devices into a fresh slice.
func PerturbAll(devices []model.Device, rng simrand.Source, now time.Time) []model.Device {
	out := make([]model.Device, len(devices))
	for i, d := range devices {
		out[i] = Perturb(d, rng, now)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
