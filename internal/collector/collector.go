package collector

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wanwatch/internal/config"
	"wanwatch/internal/execx"
	"wanwatch/internal/model"
	"wanwatch/internal/probe"
)

// CounterFactory builds the byte counter source used with a session.
type CounterFactory func(r execx.Runner, log *zap.Logger) probe.CounterSource

// NetDevFactory reads /proc/net/dev over the session itself.
func NetDevFactory(r execx.Runner, log *zap.Logger) probe.CounterSource {
	return probe.NewNetDevCounters(r, log)
}

// HostFactory reads the counters of the local host, ignoring the session.
func HostFactory(execx.Runner, *zap.Logger) probe.CounterSource {
	return probe.HostCounters{}
}

// Collector assembles one NeighborRecord per active WAN interface.
type Collector struct {
	cfg      config.CollectorConfig
	counters CounterFactory
	dialer   execx.Dialer
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg config.CollectorConfig, counters CounterFactory, log *zap.Logger) *Collector {
	if counters == nil {
		counters = NetDevFactory
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{cfg: cfg, counters: counters, log: log, now: time.Now}
}

// WithDialer sets the dialer used for extra sessions in concurrent mode.
func (c *Collector) WithDialer(d execx.Dialer) *Collector {
	c.dialer = d
	return c
}

// Run dials one session, runs a cycle on it and closes it. The cycle is
// bounded by collector.cycle_timeout when set. Only a failed dial is an error.
func (c *Collector) Run(ctx context.Context, d execx.Dialer) ([]model.NeighborRecord, error) {
	if c.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CycleTimeout)
		defer cancel()
	}
	sess, err := d.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect router: %w", err)
	}
	defer sess.Close()

	workers := c.dialer
	if workers == nil {
		workers = d
	}
	return c.collect(ctx, sess, workers), nil
}

// Collect runs one cycle on r. Interfaces are processed in discovery order;
// every metric that cannot be taken is reported as model.Missing. The result
// is never nil.
func (c *Collector) Collect(ctx context.Context, r execx.Runner) []model.NeighborRecord {
	return c.collect(ctx, r, c.dialer)
}

func (c *Collector) collect(ctx context.Context, r execx.Runner, d execx.Dialer) []model.NeighborRecord {
	concurrent := c.cfg.Concurrent && d != nil
	at := model.Timestamp(c.now())
	ifaces := c.prober(r).ActiveInterfaces(ctx, c.cfg.MaxInterfaces)
	c.log.Info("collection cycle", zap.Strings("interfaces", ifaces), zap.Bool("concurrent", concurrent))

	records := make([]model.NeighborRecord, len(ifaces))
	if !concurrent || len(ifaces) < 2 {
		for i, iface := range ifaces {
			records[i] = c.collectOne(ctx, r, iface, at)
		}
		return records
	}

	// The first interface stays on the discovery session; the rest get their own.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records[0] = c.collectOne(gctx, r, ifaces[0], at)
		return nil
	})
	for i := 1; i < len(ifaces); i++ {
		i := i
		g.Go(func() error {
			sess, err := d.Dial(gctx)
			if err != nil {
				c.log.Warn("worker session failed", zap.String("iface", ifaces[i]), zap.Error(err))
				records[i] = unmeasured(ifaces[i], c.cfg.Rating, at)
				return nil
			}
			defer sess.Close()
			records[i] = c.collectOne(gctx, sess, ifaces[i], at)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (c *Collector) prober(r execx.Runner) *probe.Prober {
	return probe.NewProber(r, probe.Options{
		PingTimeoutSec: c.cfg.PingTimeoutSec,
		StatsCount:     c.cfg.StatsCount,
	}, c.log)
}

// collectOne measures one interface. Loss and RTT use the same target as
// latency: the gateway, or the interface address when there is none.
func (c *Collector) collectOne(ctx context.Context, r execx.Runner, iface string, at model.Timestamp) model.NeighborRecord {
	log := c.log.With(zap.String("iface", iface))
	p := c.prober(r)
	s := probe.NewSampler(c.counters(r, log), c.cfg.InterfaceMap, c.cfg.SampleInterval, log)

	gw, _ := p.Gateway(ctx, iface)
	st := p.InterfaceStatus(ctx, iface)

	rec := unmeasured(iface, c.cfg.Rating, at)
	rec.IPAddress = st.Address
	if st.UptimeOK {
		rec.UptimeDays = st.UptimeDays()
	}

	target, ok := probe.SelectTarget(gw, st.Address)
	if ok && target != gw {
		log.Warn("no gateway, probing interface address", zap.String("target", target))
	}
	if v, ok := p.Latency(ctx, gw, st.Address); ok {
		rec.LatencyMs = round2(v)
	}
	if ok {
		ps := p.PingStats(ctx, target)
		if ps.LossOK {
			rec.PacketLossPercent = round2(ps.LossPercent)
		}
		if ps.AvgOK {
			rec.AvgResponseTimeMs = round2(ps.AvgRTTMs)
		}
	}

	if tp := s.Sample(ctx, iface, c.cfg.Capacity(iface)); tp.OK {
		rec.ThroughputMbps = round2(tp.Mbps)
		rec.LoadPercent = round2(tp.LoadPercent)
	}
	return rec
}

// unmeasured is a record for a discovered interface with every metric missing.
// The name is the mwan3 id uppercased for display.
func unmeasured(iface string, rating float64, at model.Timestamp) model.NeighborRecord {
	return model.NeighborRecord{
		Name:              strings.ToUpper(iface),
		IPAddress:         model.UnknownAddr,
		LatencyMs:         model.Missing,
		ThroughputMbps:    model.Missing,
		LoadPercent:       model.Missing,
		Status:            model.StatusActive,
		PacketLossPercent: model.Missing,
		UptimeDays:        model.Missing,
		LastChecked:       at,
		Rating:            rating,
		IsCurrentRoute:    true,
		AvgResponseTimeMs: model.Missing,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
