package metrics

import (
	"fmt"
	"io"
	"text/tabwriter"

	"wanwatch/internal/model"
)

// WriteTable renders records for a terminal. Missing values print as "-".
func WriteTable(w io.Writer, items []model.NeighborRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tLATENCY\tLOSS\tAVG RTT\tSPEED\tLOAD\tUPTIME")
	for _, r := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name,
			r.IPAddress,
			cell(r.LatencyMs, "ms"),
			cell(r.PacketLossPercent, "%"),
			cell(r.AvgResponseTimeMs, "ms"),
			cell(r.ThroughputMbps, " Mbps"),
			cell(r.LoadPercent, "%"),
			uptimeCell(r.UptimeDays),
		)
	}
	return tw.Flush()
}

func cell(v float64, unit string) string {
	if v == model.Missing {
		return "-"
	}
	return fmt.Sprintf("%.2f%s", v, unit)
}

func uptimeCell(days int) string {
	if days == model.Missing {
		return "-"
	}
	return fmt.Sprintf("%dd", days)
}
