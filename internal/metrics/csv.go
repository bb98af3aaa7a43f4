package metrics

import (
	"encoding/csv"
	"io"
	"strconv"

	"wanwatch/internal/model"
)

// Header is the CSV column order; names match the JSON wire format.
var Header = []string{
	"name",
	"ip_address",
	"latency",
	"speed",
	"load",
	"status",
	"packet_loss",
	"uptime",
	"last_checked",
	"rating",
	"is_current_route",
	"avg_response_time",
}

// WriteCSV writes records to CSV with a fixed column order. Missing values
// keep their -1 sentinel.
func WriteCSV(w io.Writer, items []model.NeighborRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return err
	}

	for _, r := range items {
		record := []string{
			r.Name,
			r.IPAddress,
			formatFloat(r.LatencyMs),
			formatFloat(r.ThroughputMbps),
			formatFloat(r.LoadPercent),
			r.Status,
			formatFloat(r.PacketLossPercent),
			strconv.Itoa(r.UptimeDays),
			r.LastChecked.String(),
			formatFloat(r.Rating),
			strconv.FormatBool(r.IsCurrentRoute),
			formatFloat(r.AvgResponseTimeMs),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
