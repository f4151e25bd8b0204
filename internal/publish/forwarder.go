package publish

import (
	"context"
	"log/slog"
	"time"

	"patrolwatch/internal/logging"
	"patrolwatch/internal/model"
)

const publishTimeout = 10 * time.Second

// Subscriber is the part of the engine the forwarder listens to.
type Subscriber interface {
	Snapshot() model.Snapshot
	Subscribe(buffer int) (<-chan model.Snapshot, func())
}

// FleetData is the payload of fleet.tick and fleet.reset.
type FleetData struct {
	Version uint64         `json:"version"`
	Devices []model.Device `json:"devices"`
}

// Forwarder turns snapshots into events. It remembers which alerts it has
// already reported so each raise and acknowledgement goes out once, even
// when intermediate snapshots were skipped.
type Forwarder struct {
	source Subscriber
	pub    Publisher
	logger *slog.Logger

	known map[string]bool
	acked map[string]bool
}

func NewForwarder(source Subscriber, pub Publisher, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Forwarder{
		source: source,
		pub:    pub,
		logger: logger,
		known:  make(map[string]bool),
		acked:  make(map[string]bool),
	}
}

// Run publishes until ctx is done. Alerts that exist when it starts are
// treated as history and not raised.
func (f *Forwarder) Run(ctx context.Context) error {
	f.remember(f.source.Snapshot().Alerts)
	snaps, cancel := f.source.Subscribe(16)
	defer cancel()
	f.logger.Info("event publisher started", "sink", f.pub.Name())
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			events := f.Events(snap)
			if len(events) == 0 {
				continue
			}
			pubCtx, cancelPub := context.WithTimeout(ctx, publishTimeout)
			err := f.pub.Publish(pubCtx, events...)
			cancelPub()
			if err != nil {
				f.logger.Warn("publish events failed", "sink", f.pub.Name(), "events", len(events), "err", err)
				continue
			}
			f.logger.Debug("events published", "sink", f.pub.Name(), "events", len(events), "version", snap.Version)
		}
	}
}

// Events computes what snap adds relative to what has been seen so far.
func (f *Forwarder) Events(snap model.Snapshot) []Event {
	var out []Event
	switch snap.Reason {
	case model.ReasonTick:
		out = append(out, NewEvent(TypeFleetTick, fleetKey, snap.At, FleetData{Version: snap.Version, Devices: snap.Devices}))
	case model.ReasonSeed, model.ReasonReset:
		out = append(out, NewEvent(TypeFleetReset, fleetKey, snap.At, FleetData{Version: snap.Version, Devices: snap.Devices}))
		f.remember(snap.Alerts)
		return out
	}
	for i := len(snap.Alerts) - 1; i >= 0; i-- {
		a := snap.Alerts[i]
		if !f.known[a.ID] {
			out = append(out, NewEvent(TypeAlertRaised, a.ID, snap.At, a))
		}
		if a.Acknowledged && !f.acked[a.ID] {
			out = append(out, NewEvent(TypeAlertAcknowledged, a.ID, snap.At, a))
		}
	}
	f.remember(snap.Alerts)
	return out
}

// remember replaces the tracked set with alerts. IDs are never reused, so
// anything no longer in the feed can be forgotten.
func (f *Forwarder) remember(alerts []model.Alert) {
	f.known = make(map[string]bool, len(alerts))
	f.acked = make(map[string]bool, len(alerts))
	for _, a := range alerts {
		f.known[a.ID] = true
		if a.Acknowledged {
			f.acked[a.ID] = true
		}
	}
}
