package probe

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"wanwatch/internal/execx"
)

// CounterSource reads the cumulative rx+tx byte count of a kernel device.
type CounterSource interface {
	Bytes(ctx context.Context, device string) (uint64, bool)
}

// NetDevCounters reads /proc/net/dev through a runner.
type NetDevCounters struct {
	r   execx.Runner
	log *zap.Logger
}

func NewNetDevCounters(r execx.Runner, log *zap.Logger) *NetDevCounters {
	return &NetDevCounters{r: r, log: log}
}

func (c *NetDevCounters) Bytes(ctx context.Context, device string) (uint64, bool) {
	return ParseNetDevBytes(execx.Exec(ctx, c.r, c.log, NetDevCommand), device)
}

// HostCounters reads the counters of the machine the collector runs on. It is
// used with the local transport, when the collector runs on the router.
type HostCounters struct{}

func (HostCounters) Bytes(ctx context.Context, device string) (uint64, bool) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return 0, false
	}
	for _, c := range counters {
		if c.Name == device {
			return c.BytesRecv + c.BytesSent, true
		}
	}
	return 0, false
}

// Throughput is one two-sample measurement. Mbps and LoadPercent are only
// meaningful when OK.
type Throughput struct {
	Mbps        float64
	LoadPercent float64
	OK          bool
}

// ComputeThroughput derives throughput and load from two counter samples taken
// interval apart. Rates are per configured interval, not per measured elapsed
// time; command latency around the reads is not subtracted. A counter that went backwards, a non-positive interval or a
// non-positive capacity gives a failed measurement.
func ComputeThroughput(before, after uint64, interval time.Duration, capacityMbps float64) Throughput {
	if after < before || interval <= 0 || capacityMbps <= 0 {
		return Throughput{}
	}
	delta := float64(after - before)
	mbps := delta * 8 / 1_000_000 / interval.Seconds()
	load := mbps / capacityMbps * 100
	if load > 100 {
		load = 100
	}
	return Throughput{Mbps: mbps, LoadPercent: load, OK: true}
}

// Sampler measures interface throughput over a fixed window.
type Sampler struct {
	src      CounterSource
	names    map[string]string
	interval time.Duration
	log      *zap.Logger
}

// NewSampler builds a sampler. names translates mwan3 logical names to kernel
// device names; lookups are case-insensitive.
func NewSampler(src CounterSource, names map[string]string, interval time.Duration, log *zap.Logger) *Sampler {
	lower := make(map[string]string, len(names))
	for k, v := range names {
		lower[strings.ToLower(k)] = v
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{src: src, names: lower, interval: interval, log: log}
}

// Device returns the kernel device for a logical interface, or the name itself.
func (s *Sampler) Device(iface string) string {
	if dev, ok := s.names[strings.ToLower(iface)]; ok && dev != "" {
		return dev
	}
	return iface
}

// Sample reads the counters of iface twice, one window apart. The rate is
// computed over the configured window. The wait is a timer, so a cancelled
// ctx ends the measurement early as a failure.
func (s *Sampler) Sample(ctx context.Context, iface string, capacityMbps float64) Throughput {
	dev := s.Device(iface)
	before, ok := s.src.Bytes(ctx, dev)
	if !ok {
		s.log.Warn("no byte counters for device", zap.String("iface", iface), zap.String("device", dev))
		return Throughput{}
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Throughput{}
	case <-timer.C:
	}

	after, ok := s.src.Bytes(ctx, dev)
	if !ok {
		s.log.Warn("no byte counters for device", zap.String("iface", iface), zap.String("device", dev))
		return Throughput{}
	}
	t := ComputeThroughput(before, after, s.interval, capacityMbps)
	if !t.OK {
		s.log.Warn("throughput not measurable", zap.String("device", dev),
			zap.Uint64("before", before), zap.Uint64("after", after))
	}
	return t
}
