package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"wanwatch/internal/config"
	"wanwatch/internal/execx"
	"wanwatch/internal/model"
	"wanwatch/internal/probe"
)

func tableRunner(replies map[string]string) execx.Runner {
	return execx.RunnerFunc(func(ctx context.Context, command string) (string, error) {
		out, ok := replies[command]
		if !ok {
			return "", errors.New("not found")
		}
		return out, nil
	})
}

func defaultCollector() config.CollectorConfig {
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	return cfg.Collector
}

func TestRunDoctor_AllPass(t *testing.T) {
	t.Parallel()

	r := tableRunner(map[string]string{
		probe.StatusCommand:                    "interface wan is online 00h:01m:00s, uptime 10h:00m:00s and tracking is active\n",
		"ip route show dev wan | grep default": "default via 192.168.1.1 proto static\n",
		"ifstatus wan":                         `{"uptime": 3600, "ipv4-address": [{"address": "192.168.1.20"}]}`,
		"ping -c 4 -W 1 192.168.1.1":           "4 packets transmitted, 4 received, 0% packet loss\nrtt min/avg/max/mdev = 1/2/3/0.5 ms\n",
		probe.NetDevCommand:                    "  eth0: 1 0 0 0 0 0 0 0 2 0 0 0 0 0 0 0\n",
	})
	var buf bytes.Buffer
	if ok := runDoctor(context.Background(), &buf, r, defaultCollector(), zaptest.NewLogger(t)); !ok {
		t.Fatalf("doctor failed:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "FAIL") {
		t.Fatalf("output:\n%s", buf.String())
	}
}

func TestRunDoctor_ReportsMissingDevice(t *testing.T) {
	t.Parallel()

	r := tableRunner(map[string]string{
		probe.StatusCommand: "interface wwan is online and tracking is active\n",
		"ifstatus wwan":     `{"uptime": 10, "ipv4-address": [{"address": "10.0.0.7"}]}`,
	})
	var buf bytes.Buffer
	if ok := runDoctor(context.Background(), &buf, r, defaultCollector(), zaptest.NewLogger(t)); ok {
		t.Fatalf("expected failure:\n%s", buf.String())
	}
	out := buf.String()
	if !strings.Contains(out, "device=apcli0") || !strings.Contains(out, "target=10.0.0.7") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestRunDoctor_NothingActive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if ok := runDoctor(context.Background(), &buf, tableRunner(nil), defaultCollector(), zaptest.NewLogger(t)); ok {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(buf.String(), "mwan3") {
		t.Fatalf("output:\n%s", buf.String())
	}
}

func TestWriteRecords_Formats(t *testing.T) {
	t.Parallel()

	records := []model.NeighborRecord{{Name: "wan", IPAddress: "10.0.0.2", LatencyMs: 2, PacketLossPercent: 0, Status: model.StatusActive}}
	for _, format := range []string{"json", "table", "csv"} {
		var buf bytes.Buffer
		if err := writeRecords(&buf, format, records); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !strings.Contains(buf.String(), "wan") {
			t.Fatalf("%s output:\n%s", format, buf.String())
		}
	}
	if err := writeRecords(&bytes.Buffer{}, "xml", records); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewDialer_Local(t *testing.T) {
	t.Parallel()

	d, err := newDialer(config.RouterConfig{Transport: config.TransportLocal}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newDialer: %v", err)
	}
	if _, ok := d.(execx.LocalDialer); !ok {
		t.Fatalf("dialer=%T", d)
	}
	if _, err := newDialer(config.RouterConfig{Transport: config.TransportSSH, Host: "10.0.0.1", User: "root"}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected error without credentials")
	}
}
