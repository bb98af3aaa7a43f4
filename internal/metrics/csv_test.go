package metrics

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"wanwatch/internal/model"
)

func sampleRecords() []model.NeighborRecord {
	at := model.Timestamp(time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.Local))
	return []model.NeighborRecord{
		{
			Name: "wan", IPAddress: "192.168.1.20", LatencyMs: 1.23, ThroughputMbps: 10,
			LoadPercent: 1, Status: model.StatusActive, PacketLossPercent: 0, UptimeDays: 4,
			LastChecked: at, Rating: 5, IsCurrentRoute: true, AvgResponseTimeMs: 1.46,
		},
		{
			Name: "wwan", IPAddress: model.UnknownAddr, LatencyMs: -1, ThroughputMbps: -1,
			LoadPercent: -1, Status: model.StatusActive, PacketLossPercent: -1, UptimeDays: -1,
			LastChecked: at, Rating: 5, IsCurrentRoute: true, AvgResponseTimeMs: -1,
		},
	}
}

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(Header, ",") {
		t.Fatalf("header=%v", rows[0])
	}
	if rows[1][0] != "wan" || rows[1][2] != "1.23" || rows[1][8] != "2024-05-01T12:30:00.123456" {
		t.Fatalf("row=%v", rows[1])
	}
	if rows[2][2] != "-1.00" || rows[2][7] != "-1" {
		t.Fatalf("row=%v", rows[2])
	}
}

func TestWriteTable_MissingAsDash(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteTable(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[1], "1.23ms") || !strings.Contains(lines[1], "4d") {
		t.Fatalf("table:\n%s", buf.String())
	}
	if strings.Contains(lines[2], "-1") {
		t.Fatalf("sentinel leaked: %q", lines[2])
	}
}
