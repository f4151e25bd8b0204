package model

import (
	"strings"
	"time"
)

type NetworkType string

const (
	NetworkVHF       NetworkType = "VHF"
	NetworkLoRaWAN   NetworkType = "LoRaWAN"
	NetworkLTE       NetworkType = "LTE"
	NetworkSatellite NetworkType = "Satellite"
)

// NetworkTypes lists every link type in display order.
var NetworkTypes = []NetworkType{NetworkVHF, NetworkLoRaWAN, NetworkLTE, NetworkSatellite}

type Status string

const (
	StatusActive   Status = "Active"
	StatusOffline  Status = "Offline"
	StatusDistress Status = "Distress"
)

var Statuses = []Status{StatusActive, StatusOffline, StatusDistress}

type Level string

const (
	LevelCritical Level = "Critical"
	LevelWarning  Level = "Warning"
	LevelInfo     Level = "Info"
)

// All is the filter wildcard accepted for network type and status.
const All = "All"

type Location struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

type Device struct {
	ID             string      `json:"id"`
	PatrolID       string      `json:"patrol_id"`
	Name           string      `json:"name"`
	Location       Location    `json:"location"`
	NetworkType    NetworkType `json:"network_type"`
	Status         Status      `json:"status"`
	Battery        float64     `json:"battery"`
	SignalStrength float64     `json:"signal_strength"`
	Temperature    int         `json:"temperature"`
	LastUpdate     time.Time   `json:"last_update"`
	Region         string      `json:"region"`
}

type Alert struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Level        Level     `json:"level"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

type NetworkStat struct {
	Type       NetworkType `json:"type"`
	Devices    int         `json:"devices"`
	Active     int         `json:"active"`
	Uptime     float64     `json:"uptime"`
	AvgLatency int         `json:"avg_latency_ms"`
}

type Filter struct {
	Query   string `json:"query"`
	Network string `json:"network"`
	Status  string `json:"status"`
}

type Summary struct {
	TotalDevices  int            `json:"total_devices"`
	ActiveDevices int            `json:"active_devices"`
	ActiveAlerts  int            `json:"active_alerts"`
	ByStatus      map[Status]int `json:"by_status"`
}

type SnapshotReason string

const (
	ReasonSeed        SnapshotReason = "seed"
	ReasonTick        SnapshotReason = "tick"
	ReasonAcknowledge SnapshotReason = "acknowledge"
	ReasonReset       SnapshotReason = "reset"
	ReasonClear       SnapshotReason = "clear"
)

// Snapshot is the state pushed to subscribers after every change.
// Devices and Alerts are owned by the receiver.
type Snapshot struct {
	Version uint64         `json:"version"`
	Reason  SnapshotReason `json:"reason"`
	At      time.Time      `json:"at"`
	Devices []Device       `json:"devices"`
	Alerts  []Alert        `json:"alerts"`
}

// RosterEntry is the static identity of a unit as kept in the inventory database.
type RosterEntry struct {
	ID          string      `json:"id"`
	PatrolID    string      `json:"patrol_id"`
	Name        string      `json:"name"`
	NetworkType NetworkType `json:"network_type"`
	Region      string      `json:"region"`
	Lat         float64     `json:"lat"`
	Lng         float64     `json:"lng"`
}

func ParseNetworkType(s string) (NetworkType, bool) {
	for _, nt := range NetworkTypes {
		if strings.EqualFold(s, string(nt)) {
			return nt, true
		}
	}
	return "", false
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

func CloneDevices(in []Device) []Device {
	if in == nil {
		return nil
	}
	out := make([]Device, len(in))
	copy(out, in)
	return out
}

func CloneAlerts(in []Alert) []Alert {
	if in == nil {
		return nil
	}
	out := make([]Alert, len(in))
	copy(out, in)
	return out
}
