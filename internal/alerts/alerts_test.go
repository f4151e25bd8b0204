package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"patrolwatch/internal/model"
	"patrolwatch/internal/simrand"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func device(id string, status model.Status, battery float64) model.Device {
	return model.Device{ID: id, Status: status, Battery: battery}
}

func TestLevelFor(t *testing.T) {
	require.Equal(t, model.LevelCritical, LevelFor(device("a", model.StatusDistress, 5)))
	require.Equal(t, model.LevelWarning, LevelFor(device("a", model.StatusActive, 19.9)))
	require.Equal(t, model.LevelInfo, LevelFor(device("a", model.StatusOffline, 20)))
}

func TestGenerateDistressDevice(t *testing.T) {
	// chance, offset. Distress devices skip the catalog pick.
	rng := simrand.NewFixed(0.1, 0.5)
	g := NewGenerator(GeneratorOptions{Probability: 0.3, Lookback: 10 * time.Minute}, rng)

	out := g.Generate([]model.Device{device("BSF-001", model.StatusDistress, 80)}, now)
	require.Len(t, out, 1)
	a := out[0]
	require.Equal(t, "ALT-0001", a.ID)
	require.Equal(t, "BSF-001", a.DeviceID)
	require.Equal(t, model.LevelCritical, a.Level)
	require.Equal(t, MessageDistress, a.Message)
	require.Equal(t, now.Add(-5*time.Minute), a.Timestamp)
	require.False(t, a.Acknowledged)
	require.Equal(t, 0, rng.Remaining())
}

func TestGenerateSkipsDevicesThatMissTheDraw(t *testing.T) {
	rng := simrand.NewFixed(0.3, 0.99)
	g := NewGenerator(GeneratorOptions{Probability: 0.3}, rng)
	out := g.Generate([]model.Device{
		device("BSF-001", model.StatusActive, 50),
		device("BSF-002", model.StatusActive, 50),
	}, now)
	require.Empty(t, out)
}

func TestGenerateSortsNewestFirst(t *testing.T) {
	// Per device: chance, message pick, offset.
	rng := simrand.NewFixed(
		0.0, 0.0, 0.9,
		0.0, 0.2, 0.1,
		0.0, 0.5, 0.5,
	)
	g := NewGenerator(GeneratorOptions{Probability: 1, Lookback: 10 * time.Minute}, rng)
	out := g.Generate([]model.Device{
		device("BSF-001", model.StatusActive, 10),
		device("BSF-002", model.StatusActive, 50),
		device("BSF-003", model.StatusOffline, 50),
	}, now)
	require.Len(t, out, 3)
	require.Equal(t, []string{"BSF-002", "BSF-003", "BSF-001"}, []string{out[0].DeviceID, out[1].DeviceID, out[2].DeviceID})
	require.Equal(t, "Low battery warning", out[2].Message)
	require.Equal(t, model.LevelWarning, out[2].Level)
	require.Equal(t, "Weak signal detected", out[0].Message)
	require.Equal(t, "Network handover initiated", out[1].Message)
	for i := 1; i < len(out); i++ {
		require.False(t, out[i].Timestamp.After(out[i-1].Timestamp))
	}
}

func TestSeedDrawsAcknowledgedFlag(t *testing.T) {
	// chance, offset, ack for each distress device.
	rng := simrand.NewFixed(0.0, 0.1, 0.2, 0.0, 0.2, 0.7)
	g := NewGenerator(GeneratorOptions{Probability: 0.5}, rng)
	out := g.Seed([]model.Device{
		device("BSF-001", model.StatusDistress, 50),
		device("BSF-002", model.StatusDistress, 50),
	}, now)
	require.Len(t, out, 2)
	require.True(t, out[0].Acknowledged)
	require.False(t, out[1].Acknowledged)
	require.Equal(t, 0, rng.Remaining())
}

func TestIDsNeverRepeatAcrossPasses(t *testing.T) {
	g := NewGenerator(GeneratorOptions{Probability: 1}, simrand.New(3))
	fleet := []model.Device{device("BSF-001", model.StatusActive, 50), device("BSF-002", model.StatusActive, 50)}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		for _, a := range g.Generate(fleet, now) {
			require.False(t, seen[a.ID], "duplicate id %s", a.ID)
			seen[a.ID] = true
		}
	}
	require.Len(t, seen, 100)
}

func TestGenerateEmptyFleet(t *testing.T) {
	g := NewGenerator(GeneratorOptions{Probability: 1}, simrand.New(1))
	out := g.Generate(nil, now)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func alert(n int) model.Alert {
	return model.Alert{ID: fmt.Sprintf("ALT-%04d", n), Timestamp: now.Add(time.Duration(n) * time.Second)}
}

func TestStorePrependCapsFeed(t *testing.T) {
	s := NewStore(3)
	s.Prepend(alert(1), alert(2))
	s.Prepend(alert(3))
	s.Prepend(alert(4))
	got := s.List(0)
	require.Len(t, got, 3)
	require.Equal(t, "ALT-0004", got[0].ID)
	require.Equal(t, "ALT-0003", got[1].ID)
	require.Equal(t, "ALT-0001", got[2].ID)
}

func TestStoreAcknowledge(t *testing.T) {
	s := NewStore(20)
	s.Replace([]model.Alert{alert(1), alert(2)})
	require.Equal(t, 2, s.Unacknowledged())

	before := s.List(0)
	require.True(t, s.Acknowledge("ALT-0002"))
	require.False(t, s.Acknowledge("ALT-0002"))
	require.False(t, s.Acknowledge("ALT-9999"))
	require.Equal(t, 1, s.Unacknowledged())

	a, ok := s.Get("ALT-0002")
	require.True(t, ok)
	require.True(t, a.Acknowledged)
	require.False(t, before[1].Acknowledged, "earlier lists must not observe the change")
}

func TestStoreSinceAndClear(t *testing.T) {
	s := NewStore(0)
	require.Equal(t, 20, s.Limit())
	s.Replace([]model.Alert{alert(3), alert(2), alert(1)})
	require.Len(t, s.Since(now.Add(2*time.Second)), 2)
	require.Len(t, s.List(1), 1)
	s.Clear()
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.List(0))
}
