package telemetry

import (
	"fmt"
	"math"
	"time"

	"patrolwatch/internal/model"
	"patrolwatch/internal/simrand"
)

const (
	unitsPerPatrol  = 3
	maxReportingLag = 5 * time.Minute
)

type FleetOptions struct {
	Size      int
	Regions   []string
	CenterLat float64
	CenterLng float64
	// Spread is the full width in degrees of the square units are scattered over.
	Spread float64
}

// GenerateFleet builds the initial session fleet: BSF-001.. grouped three per patrol.
func GenerateFleet(opts FleetOptions, rng simrand.Source, now time.Time) []model.Device {
	devices := make([]model.Device, 0, opts.Size)
	for i := 0; i < opts.Size; i++ {
		entry := model.RosterEntry{
			ID:       fmt.Sprintf("BSF-%03d", i+1),
			PatrolID: fmt.Sprintf("PTL-%02d", i/unitsPerPatrol+1),
			Name:     fmt.Sprintf("Unit %d", i+1),
			Lat:      opts.CenterLat + (rng.Float64()-0.5)*opts.Spread,
			Lng:      opts.CenterLng + (rng.Float64()-0.5)*opts.Spread,
		}
		devices = append(devices, populate(entry, opts.Regions, rng, now))
	}
	return devices
}

// FromRoster builds devices whose identity comes from the inventory while the
// live readings are simulated. Entries missing a network type or region get one drawn.
func FromRoster(entries []model.RosterEntry, regions []string, rng simrand.Source, now time.Time) []model.Device {
	devices := make([]model.Device, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, populate(e, regions, rng, now))
	}
	return devices
}

// GenerateRoster produces inventory rows for seeding a roster database.
func GenerateRoster(opts FleetOptions, rng simrand.Source) []model.RosterEntry {
	devices := GenerateFleet(opts, rng, time.Time{})
	out := make([]model.RosterEntry, 0, len(devices))
	for _, d := range devices {
		out = append(out, model.RosterEntry{
			ID:          d.ID,
			PatrolID:    d.PatrolID,
			Name:        d.Name,
			NetworkType: d.NetworkType,
			Region:      d.Region,
			Lat:         d.Location.Lat,
			Lng:         d.Location.Lng,
		})
	}
	return out
}

func populate(e model.RosterEntry, regions []string, rng simrand.Source, now time.Time) model.Device {
	d := model.Device{
		ID:       e.ID,
		PatrolID: e.PatrolID,
		Name:     e.Name,
		Location: model.Location{
			Lat:      e.Lat,
			Lng:      e.Lng,
			Accuracy: simrand.Uniform(rng, 2, 12),
		},
		NetworkType: e.NetworkType,
		Region:      e.Region,
	}
	if d.NetworkType == "" {
		d.NetworkType = simrand.Pick(rng, model.NetworkTypes)
	}
	d.Status = drawStatus(rng)
	d.Battery = math.Floor(rng.Float64() * 100)
	d.SignalStrength = math.Floor(rng.Float64() * 100)
	d.Temperature = int(math.Floor(simrand.Uniform(rng, minTemperature, maxTemperature)))
	d.LastUpdate = now.Add(-time.Duration(rng.Float64() * float64(maxReportingLag)))
	if d.Region == "" && len(regions) > 0 {
		d.Region = simrand.Pick(rng, regions)
	}
	return d
}

// drawStatus keeps roughly 10% of units offline and a rare few in distress.
func drawStatus(rng simrand.Source) model.Status {
	if rng.Float64() > 0.9 {
		return model.StatusOffline
	}
	if rng.Float64() > 0.95 {
		return model.StatusDistress
	}
	return model.StatusActive
}
