package model

import (
	"time"
)

const (
	// Missing marks a numeric measurement that could not be taken.
	Missing = -1
	// UnknownAddr marks an interface whose IPv4 address could not be resolved.
	UnknownAddr = "Unknown"
	// StatusActive is the only status the collector reports; discovery already
	// filters to online, tracked interfaces.
	StatusActive = "active"
	// DefaultRating is the nominal rating carried for downstream consumers.
	DefaultRating = 5.0
)

// NeighborRecord is the health of one active WAN interface in one collection
// cycle. JSON names are the wire format consumed by the dashboard.
type NeighborRecord struct {
	Name              string    `json:"name"`
	IPAddress         string    `json:"ip_address"`
	LatencyMs         float64   `json:"latency"`
	ThroughputMbps    float64   `json:"speed"`
	LoadPercent       float64   `json:"load"`
	Status            string    `json:"status"`
	PacketLossPercent float64   `json:"packet_loss"`
	UptimeDays        int       `json:"uptime"`
	LastChecked       Timestamp `json:"last_checked"`
	Rating            float64   `json:"rating"`
	IsCurrentRoute    bool      `json:"is_current_route"`
	AvgResponseTimeMs float64   `json:"avg_response_time"`
}

// TimestampLayout is ISO-8601 local time with microseconds and no zone.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Timestamp encodes as TimestampLayout.
type Timestamp time.Time

func (t Timestamp) Time() time.Time { return time.Time(t) }

func (t Timestamp) String() string {
	return time.Time(t).Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*t = Timestamp{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return &time.ParseError{Layout: TimestampLayout, Value: s}
	}
	s = s[1 : len(s)-1]
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		// Records from other producers may carry a zone.
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
	}
	*t = Timestamp(parsed)
	return nil
}
