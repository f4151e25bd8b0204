// Package stats derives the per-network and header figures shown on the
// dashboard. Nothing here is stored; every call recomputes from the devices.
package stats

import (
	"patrolwatch/internal/model"
	"patrolwatch/internal/simrand"
)

const (
	latencyBase   = 50
	latencySpread = 100
)

// Aggregate returns one entry per network type, in model.NetworkTypes order,
// including types no device uses. Latency is synthetic and drawn from rng.
func Aggregate(devices []model.Device, rng simrand.Source) []model.NetworkStat {
	index := make(map[model.NetworkType]int, len(model.NetworkTypes))
	out := make([]model.NetworkStat, len(model.NetworkTypes))
	for i, nt := range model.NetworkTypes {
		index[nt] = i
		out[i].Type = nt
	}
	for _, d := range devices {
		i, ok := index[d.NetworkType]
		if !ok {
			continue
		}
		out[i].Devices++
		if d.Status == model.StatusActive {
			out[i].Active++
		}
	}
	for i := range out {
		out[i].Uptime = Uptime(out[i].Active, out[i].Devices)
		out[i].AvgLatency = latencyBase + int(rng.Float64()*latencySpread)
	}
	return out
}

// Uptime is active/total as a percentage, or 0 for an empty group.
func Uptime(active, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(active) / float64(total) * 100
}

// Summarize produces the header counters. ActiveAlerts counts alerts that
// have not been acknowledged.
func Summarize(devices []model.Device, alerts []model.Alert) model.Summary {
	s := model.Summary{
		TotalDevices: len(devices),
		ByStatus:     make(map[model.Status]int, len(model.Statuses)),
	}
	for _, st := range model.Statuses {
		s.ByStatus[st] = 0
	}
	for _, d := range devices {
		s.ByStatus[d.Status]++
		if d.Status == model.StatusActive {
			s.ActiveDevices++
		}
	}
	for _, a := range alerts {
		if !a.Acknowledged {
			s.ActiveAlerts++
		}
	}
	return s
}
