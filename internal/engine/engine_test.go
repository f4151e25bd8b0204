package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"patrolwatch/internal/alerts"
	"patrolwatch/internal/clock"
	"patrolwatch/internal/config"
	"patrolwatch/internal/metrics"
	"patrolwatch/internal/model"
	"patrolwatch/internal/simrand"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Simulation.Seed = 7
	return cfg
}

// alwaysAlerting makes every tick raise exactly one alert.
func alwaysAlerting(size int) *config.Config {
	cfg := testConfig()
	cfg.Fleet.Size = size
	cfg.Simulation.TickAlertProbability = 1
	cfg.Simulation.DeviceAlertProbability = 1
	return cfg
}

func newEngineForTest(cfg *config.Config) (*Engine, *clock.Manual) {
	clk := clock.NewManual(epoch)
	eng := NewEngine(cfg, nil, metrics.NewStore(epoch), alerts.NewStore(cfg.Alerts.FeedLimit), clk, simrand.New(cfg.Simulation.Seed))
	return eng, clk
}

func receive(t *testing.T, ch <-chan model.Snapshot) model.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return model.Snapshot{}
}

func TestSeededFleet(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	devices := eng.Devices()
	require.Len(t, devices, 24)
	require.Equal(t, "BSF-001", devices[0].ID)
	require.Equal(t, "BSF-024", devices[23].ID)
	require.LessOrEqual(t, len(eng.Alerts()), 20)

	snap := eng.Snapshot()
	require.Equal(t, uint64(1), snap.Version)
	require.Equal(t, model.ReasonSeed, snap.Reason)
	require.Equal(t, epoch, snap.At)
}

func TestTickReplacesDevicesAndKeepsIdentity(t *testing.T) {
	eng, clk := newEngineForTest(testConfig())
	before := eng.Devices()
	clk.Advance(5 * time.Second)
	snap := eng.Tick()

	require.Equal(t, model.ReasonTick, snap.Reason)
	require.Equal(t, uint64(2), snap.Version)
	require.Len(t, snap.Devices, len(before))
	for i, d := range snap.Devices {
		require.Equal(t, before[i].ID, d.ID)
		require.Equal(t, before[i].Status, d.Status)
		require.LessOrEqual(t, d.Battery, before[i].Battery)
		require.Equal(t, epoch.Add(5*time.Second), d.LastUpdate)
	}
	require.Equal(t, uint64(1), eng.Metrics().Ticks)
}

func TestTelemetryStaysInRangeOverManyTicks(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	prev := eng.Devices()
	for i := 0; i < 300; i++ {
		snap := eng.Tick()
		for j, d := range snap.Devices {
			require.GreaterOrEqual(t, d.Battery, 0.0)
			require.LessOrEqual(t, d.Battery, 100.0)
			require.GreaterOrEqual(t, d.SignalStrength, 0.0)
			require.LessOrEqual(t, d.SignalStrength, 100.0)
			require.LessOrEqual(t, d.Battery, prev[j].Battery)
		}
		prev = snap.Devices
	}
}

func TestTickPrependsNewestAlertAndCapsFeed(t *testing.T) {
	eng, _ := newEngineForTest(alwaysAlerting(3))
	for i := 0; i < 30; i++ {
		before := eng.Alerts()
		snap := eng.Tick()
		require.LessOrEqual(t, len(snap.Alerts), 20)
		require.NotEqual(t, "", snap.Alerts[0].ID)
		require.False(t, snap.Alerts[0].Acknowledged)
		if len(before) > 0 {
			require.Equal(t, before[0].ID, snap.Alerts[1].ID)
		}
	}
	require.Len(t, eng.Alerts(), 20)
	got := eng.Metrics()
	require.Equal(t, uint64(30), got.AlertsRaised)
	require.Positive(t, got.AlertsDropped)
}

func TestTickWithoutAlertDraw(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.TickAlertProbability = 0
	eng, _ := newEngineForTest(cfg)
	before := eng.Alerts()
	eng.Tick()
	require.Equal(t, before, eng.Alerts())
}

func TestAlertIDsStayUnique(t *testing.T) {
	eng, _ := newEngineForTest(alwaysAlerting(5))
	for i := 0; i < 40; i++ {
		eng.Tick()
	}
	seen := map[string]bool{}
	for _, a := range eng.Alerts() {
		require.False(t, seen[a.ID], "duplicate %s", a.ID)
		seen[a.ID] = true
	}
}

func TestAcknowledge(t *testing.T) {
	eng, _ := newEngineForTest(alwaysAlerting(2))
	eng.ClearAlerts()
	snap := eng.Tick()
	require.Len(t, snap.Alerts, 1)
	id := snap.Alerts[0].ID
	require.Equal(t, 1, eng.Summary().ActiveAlerts)

	require.True(t, eng.Acknowledge(id))
	afterFirst := eng.Snapshot()
	require.Equal(t, model.ReasonAcknowledge, afterFirst.Reason)
	require.True(t, afterFirst.Alerts[0].Acknowledged)
	require.Equal(t, 0, eng.Summary().ActiveAlerts)

	require.False(t, eng.Acknowledge(id))
	require.Equal(t, afterFirst, eng.Snapshot())
	require.Equal(t, uint64(1), eng.Metrics().Acknowledged)
}

func TestAcknowledgeUnknownIsNoop(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	before := eng.Snapshot()
	require.False(t, eng.Acknowledge("ALT-9999"))
	require.Equal(t, before, eng.Snapshot())
}

func TestQueries(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())

	d, err := eng.Device("BSF-002")
	require.NoError(t, err)
	require.Equal(t, "BSF-002", d.ID)
	_, err = eng.Device("BSF-999")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	got := eng.Query(model.Filter{Query: "bsf-002", Network: model.All, Status: model.All})
	require.Len(t, got, 1)
	require.Len(t, eng.Query(model.Filter{}), 24)

	netStats := eng.NetworkStats()
	require.Len(t, netStats, 4)
	total := 0
	for _, st := range netStats {
		total += st.Devices
	}
	require.Equal(t, 24, total)
	require.Equal(t, 24, eng.Summary().TotalDevices)
}

func TestDevicesAreCopies(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	devices := eng.Devices()
	devices[0].Battery = -1
	d, err := eng.Device(devices[0].ID)
	require.NoError(t, err)
	require.NotEqual(t, -1.0, d.Battery)
}

func TestResetAndClear(t *testing.T) {
	eng, _ := newEngineForTest(alwaysAlerting(4))
	eng.Tick()
	snap := eng.ClearAlerts()
	require.Equal(t, model.ReasonClear, snap.Reason)
	require.Empty(t, snap.Alerts)

	snap = eng.Reset()
	require.Equal(t, model.ReasonReset, snap.Reason)
	require.Len(t, snap.Devices, 4)
	require.Len(t, snap.Alerts, 4)
	require.Equal(t, uint64(1), eng.Metrics().Resets)
}

func TestSetRoster(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	entries := []model.RosterEntry{
		{ID: "UNIT-A", PatrolID: "PTL-09", Name: "Alpha", NetworkType: model.NetworkLTE, Region: "West Zone"},
		{ID: "UNIT-B", PatrolID: "PTL-09", Name: "Bravo"},
	}
	snap := eng.SetRoster(entries)
	require.Len(t, snap.Devices, 2)
	require.Equal(t, "UNIT-A", snap.Devices[0].ID)
	require.Equal(t, model.NetworkLTE, snap.Devices[0].NetworkType)
	require.NotEmpty(t, snap.Devices[1].NetworkType)

	snap = eng.Reset()
	require.Equal(t, "UNIT-A", snap.Devices[0].ID)
}

func TestSubscribeReceivesChanges(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	ch, cancel := eng.Subscribe(4)
	defer cancel()

	eng.Tick()
	snap := receive(t, ch)
	require.Equal(t, model.ReasonTick, snap.Reason)
	require.Equal(t, uint64(2), snap.Version)

	snap.Devices[0].ID = "mutated"
	require.Equal(t, "BSF-001", eng.Devices()[0].ID)
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	ch, cancel := eng.Subscribe(1)
	defer cancel()
	for i := 0; i < 3; i++ {
		eng.Tick()
	}
	snap := receive(t, ch)
	require.Equal(t, uint64(4), snap.Version)
	select {
	case <-ch:
		t.Fatalf("expected stale snapshots to be dropped")
	default:
	}
	require.Equal(t, uint64(2), eng.Metrics().SnapshotsDropped)
}

func TestCancelClosesSubscription(t *testing.T) {
	eng, _ := newEngineForTest(testConfig())
	ch, cancel := eng.Subscribe(1)
	require.Equal(t, 1, eng.Subscribers())
	cancel()
	cancel()
	require.Equal(t, 0, eng.Subscribers())
	_, ok := <-ch
	require.False(t, ok)
	eng.Tick()
}

func TestRunTicksOnClock(t *testing.T) {
	eng, clk := newEngineForTest(testConfig())
	ch, cancel := eng.Subscribe(4)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	require.Eventually(t, func() bool { return clk.Tickers() == 1 }, 2*time.Second, 5*time.Millisecond)
	clk.Advance(5 * time.Second)
	snap := receive(t, ch)
	require.Equal(t, model.ReasonTick, snap.Reason)
	require.Equal(t, epoch.Add(5*time.Second), snap.Devices[0].LastUpdate)

	stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	require.Equal(t, 0, clk.Tickers())
}

func TestUpdateConfigChangesInterval(t *testing.T) {
	cfg := testConfig()
	eng, clk := newEngineForTest(cfg)
	ch, cancel := eng.Subscribe(4)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = eng.Run(ctx) }()
	require.Eventually(t, func() bool { return clk.Tickers() == 1 }, 2*time.Second, 5*time.Millisecond)

	next := testConfig()
	next.Simulation.TickInterval = time.Second
	eng.UpdateConfig(next)
	require.Eventually(t, func() bool {
		return time.Duration(eng.interval.Load()) == time.Second
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, clk.Tickers())

	clk.Advance(time.Second)
	snap := receive(t, ch)
	require.Equal(t, model.ReasonTick, snap.Reason)
}

func TestUpdateConfigAppliesProbabilities(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.TickAlertProbability = 0
	eng, _ := newEngineForTest(cfg)
	eng.ClearAlerts()
	eng.Tick()
	require.Empty(t, eng.Alerts())

	eng.UpdateConfig(alwaysAlerting(24))
	eng.Tick()
	require.Len(t, eng.Alerts(), 1)
	require.Contains(t, eng.Alerts()[0].DeviceID, "BSF-")
}
