// Package query narrows the device list for the dashboard's search box and
// drop-down filters.
package query

import (
	"errors"
	"fmt"
	"strings"

	"patrolwatch/internal/model"
)

var ErrInvalidFilter = errors.New("invalid filter")

// ParseFilter builds a Filter from raw request values. Empty values mean All.
// Enum values are matched case-insensitively and returned in canonical form.
func ParseFilter(q, network, status string) (model.Filter, error) {
	f := model.Filter{Query: q, Network: model.All, Status: model.All}

	network = strings.TrimSpace(network)
	if network != "" && !strings.EqualFold(network, model.All) {
		nt, ok := model.ParseNetworkType(network)
		if !ok {
			return model.Filter{}, fmt.Errorf("%w: unknown network type %q", ErrInvalidFilter, network)
		}
		f.Network = string(nt)
	}

	status = strings.TrimSpace(status)
	if status != "" && !strings.EqualFold(status, model.All) {
		st, ok := model.ParseStatus(status)
		if !ok {
			return model.Filter{}, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, status)
		}
		f.Status = string(st)
	}
	return f, nil
}

// Filter returns the devices matching f in their original order. The input
// slice is not modified.
func Filter(devices []model.Device, f model.Filter) []model.Device {
	q := strings.ToLower(f.Query)
	result := make([]model.Device, 0, len(devices))
	for _, d := range devices {
		if !isAll(f.Network) && !strings.EqualFold(f.Network, string(d.NetworkType)) {
			continue
		}
		if !isAll(f.Status) && !strings.EqualFold(f.Status, string(d.Status)) {
			continue
		}
		if q != "" && !matchesQuery(d, q) {
			continue
		}
		result = append(result, d)
	}
	return result
}

// Match reports whether a single device passes f.
func Match(d model.Device, f model.Filter) bool {
	return len(Filter([]model.Device{d}, f)) == 1
}

func isAll(v string) bool {
	return v == "" || strings.EqualFold(v, model.All)
}

func matchesQuery(d model.Device, query string) bool {
	if strings.Contains(strings.ToLower(d.ID), query) {
		return true
	}
	if strings.Contains(strings.ToLower(d.PatrolID), query) {
		return true
	}
	if strings.Contains(strings.ToLower(d.Region), query) {
		return true
	}
	return false
}
