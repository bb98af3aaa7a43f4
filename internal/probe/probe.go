package probe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wanwatch/internal/execx"
	"wanwatch/internal/model"
)

const (
	StatusCommand = "mwan3 status"
	NetDevCommand = "cat /proc/net/dev"
)

// GatewayCommand lists the default route bound to iface.
func GatewayCommand(iface string) string {
	return fmt.Sprintf("ip route show dev %s | grep default", iface)
}

// IfstatusCommand asks netifd for the interface's JSON status.
func IfstatusCommand(iface string) string {
	return "ifstatus " + iface
}

// PingCommand sends count echo requests, waiting at most timeoutSec for each reply.
func PingCommand(count, timeoutSec int, target string) string {
	return fmt.Sprintf("ping -c %d -W %d %s", count, timeoutSec, target)
}

// Options tune the ping probes.
type Options struct {
	PingTimeoutSec int
	StatsCount     int
}

// Prober issues diagnostic commands over one runner and parses their output.
// Every method degrades to a missing value; none returns an error.
type Prober struct {
	r    execx.Runner
	log  *zap.Logger
	opts Options
}

func NewProber(r execx.Runner, opts Options, log *zap.Logger) *Prober {
	if opts.PingTimeoutSec <= 0 {
		opts.PingTimeoutSec = 1
	}
	if opts.StatsCount <= 0 {
		opts.StatsCount = 4
	}
	return &Prober{r: r, log: log, opts: opts}
}

func (p *Prober) exec(ctx context.Context, command string) string {
	return execx.Exec(ctx, p.r, p.log, command)
}

// ActiveInterfaces lists up to limit interfaces that mwan3 reports online and tracked.
func (p *Prober) ActiveInterfaces(ctx context.Context, limit int) []string {
	out := p.exec(ctx, StatusCommand)
	p.log.Debug("mwan3 status", zap.String("output", out))
	return ParseActiveInterfaces(out, limit)
}

// Gateway resolves the default gateway of iface.
func (p *Prober) Gateway(ctx context.Context, iface string) (string, bool) {
	if !safeToken(iface) {
		p.log.Warn("refusing unsafe interface name", zap.String("iface", iface))
		return "", false
	}
	return ParseDefaultGateway(p.exec(ctx, GatewayCommand(iface)))
}

// InterfaceStatus reads the IPv4 address and uptime of iface.
func (p *Prober) InterfaceStatus(ctx context.Context, iface string) InterfaceStatus {
	if !safeToken(iface) {
		p.log.Warn("refusing unsafe interface name", zap.String("iface", iface))
		return InterfaceStatus{Address: model.UnknownAddr}
	}
	st := ParseInterfaceStatus(p.exec(ctx, IfstatusCommand(iface)))
	if st.Address == model.UnknownAddr || !st.UptimeOK {
		p.log.Warn("incomplete interface status", zap.String("iface", iface),
			zap.String("address", st.Address), zap.Bool("uptime_ok", st.UptimeOK))
	}
	return st
}

// SelectTarget picks primary when it is a usable address and fallback otherwise.
func SelectTarget(primary, fallback string) (string, bool) {
	if usable(primary) {
		return primary, true
	}
	if usable(fallback) {
		return fallback, true
	}
	return "", false
}

// Latency sends one echo request to primary, or to fallback when primary is
// not usable. No command is issued when neither is.
func (p *Prober) Latency(ctx context.Context, primary, fallback string) (float64, bool) {
	target, ok := SelectTarget(primary, fallback)
	if !ok {
		p.log.Warn("no address to ping", zap.String("primary", primary), zap.String("fallback", fallback))
		return 0, false
	}
	v, ok := ParseLatency(p.exec(ctx, PingCommand(1, p.opts.PingTimeoutSec, target)))
	if !ok {
		p.log.Warn("no latency in ping output", zap.String("target", target))
	}
	return v, ok
}

// PingStats measures packet loss and average round-trip time to target.
func (p *Prober) PingStats(ctx context.Context, target string) PingStats {
	if !usable(target) {
		return PingStats{}
	}
	st := ParsePingStats(p.exec(ctx, PingCommand(p.opts.StatsCount, p.opts.PingTimeoutSec, target)))
	if !st.LossOK || !st.AvgOK {
		p.log.Warn("incomplete ping statistics", zap.String("target", target),
			zap.Bool("loss_ok", st.LossOK), zap.Bool("avg_ok", st.AvgOK))
	}
	return st
}

func usable(addr string) bool {
	return addr != "" && addr != model.UnknownAddr && safeToken(addr)
}

// safeToken reports whether s can be placed in a shell command unquoted.
// Interface names and addresses never need more than this set.
func safeToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_', c == ':', c == '@':
		default:
			return false
		}
	}
	return true
}
