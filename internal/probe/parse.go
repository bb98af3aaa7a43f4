package probe

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"wanwatch/internal/model"
)

// ParseActiveInterfaces returns, in order of appearance, up to limit interface
// names from mwan3 status output whose line reports the interface online and
// under active tracking:
//
//	interface wan is online 00h:12m:09s, uptime 01h:02m:03s and tracking is active
func ParseActiveInterfaces(status string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	ifaces := []string{}
	for _, line := range strings.Split(status, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "interface") {
			continue
		}
		if !strings.Contains(line, "is online") || !strings.Contains(line, "tracking is active") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ifaces = append(ifaces, fields[1])
		if len(ifaces) >= limit {
			break
		}
	}
	return ifaces
}

// ParseDefaultGateway returns the address after "via" on the first default
// route line of `ip route` output.
func ParseDefaultGateway(routes string) (string, bool) {
	for _, line := range strings.Split(routes, "\n") {
		fields := strings.Fields(line)
		if !slices.Contains(fields, "default") {
			continue
		}
		for i, f := range fields {
			if f == "via" && i+1 < len(fields) {
				return fields[i+1], true
			}
		}
	}
	return "", false
}

// InterfaceStatus is what the collector needs from `ifstatus <iface>`.
type InterfaceStatus struct {
	// Address is the first IPv4 address, or model.UnknownAddr.
	Address  string
	Uptime   time.Duration
	UptimeOK bool
}

// UptimeDays rounds uptime to whole days (half to even), or model.Missing.
func (s InterfaceStatus) UptimeDays() int {
	if !s.UptimeOK {
		return model.Missing
	}
	return int(math.RoundToEven(s.Uptime.Seconds() / 86400))
}

type ifstatusJSON struct {
	IPv4 []struct {
		Address string `json:"address"`
	} `json:"ipv4-address"`
	Uptime *float64 `json:"uptime"`
}

// ParseInterfaceStatus decodes ifstatus JSON. Anything that is not a JSON
// object yields an unknown address and no uptime.
func ParseInterfaceStatus(data string) InterfaceStatus {
	st := InterfaceStatus{Address: model.UnknownAddr}
	var js ifstatusJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &js); err != nil {
		return st
	}
	if len(js.IPv4) > 0 && js.IPv4[0].Address != "" {
		st.Address = js.IPv4[0].Address
	}
	if js.Uptime != nil && *js.Uptime >= 0 {
		st.Uptime = time.Duration(*js.Uptime * float64(time.Second))
		st.UptimeOK = true
	}
	return st
}

// ParseLatency extracts the round-trip time from the first reply line of ping
// output ("64 bytes from 10.0.0.1: seq=0 ttl=64 time=0.512 ms").
func ParseLatency(out string) (float64, bool) {
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "time=")
		if idx < 0 {
			continue
		}
		return leadingNumber(line[idx+len("time="):])
	}
	return 0, false
}

// PingStats holds the two summary figures of a multi-packet ping. Each is
// parsed independently.
type PingStats struct {
	LossPercent float64
	LossOK      bool
	AvgRTTMs    float64
	AvgOK       bool
}

// ParsePingStats reads the loss line and the round-trip summary line of ping
// output, in either iputils or BusyBox wording.
func ParsePingStats(out string) PingStats {
	var st PingStats
	lossSeen, rttSeen := false, false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !lossSeen && strings.Contains(line, "packet loss") {
			lossSeen = true
			st.LossPercent, st.LossOK = parseLoss(line)
		}
		if !rttSeen && (strings.Contains(line, "min/avg/max") || strings.Contains(line, "round-trip")) {
			rttSeen = true
			st.AvgRTTMs, st.AvgOK = parseAvg(line)
		}
	}
	return st
}

func parseLoss(line string) (float64, bool) {
	for _, f := range strings.Fields(line) {
		if !strings.Contains(f, "%") {
			continue
		}
		v, err := strconv.ParseFloat(strings.Trim(strings.ReplaceAll(f, "%", ""), ",()"), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func parseAvg(line string) (float64, bool) {
	idx := strings.LastIndex(line, "=")
	if idx < 0 {
		return 0, false
	}
	parts := strings.Split(line[idx+1:], "/")
	if len(parts) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseNetDevBytes returns rx+tx bytes of device from /proc/net/dev. The name
// column ends at the first colon and may touch the first counter
// ("eth0:1234 ..."); receive bytes are the first counter and transmit bytes
// the ninth.
func ParseNetDevBytes(table, device string) (uint64, bool) {
	for _, line := range strings.Split(table, "\n") {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		if strings.TrimSpace(line[:idx]) != device {
			continue
		}
		fields := strings.Fields(line[idx+1:])
		if len(fields) < 9 {
			return 0, false
		}
		rx, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, false
		}
		tx, err := strconv.ParseUint(fields[8], 10, 64)
		if err != nil {
			return 0, false
		}
		return rx + tx, true
	}
	return 0, false
}

// leadingNumber parses the digits and dots at the start of s, ignoring any
// unit suffix.
func leadingNumber(s string) (float64, bool) {
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
