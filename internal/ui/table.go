// Package ui renders the busiest flows as a console table.
package ui

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"Go2NetTop/internal/engine/flowengine"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Columns holding numbers.
const (
	colTraffic = 3
	colThpt    = 4
)

// FormatBytes renders a byte count with SI prefixes.
func FormatBytes(n uint64) string {
	return humanize.Bytes(n)
}

// FormatBits renders a byte rate as bits per second with SI prefixes.
func FormatBits(bytesPerSec float64) string {
	return humanize.SIWithDigits(bytesPerSec*8, 1, "b/s")
}

func endpoint(ip net.IP, port uint16) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}

// Render draws the header line and the first top flows ordered by key.
func Render(flows []flowengine.FlowView, totals flowengine.Totals, by flowengine.SortKey, top int) string {
	flows = flowengine.TopFlows(flows, by, top)

	rows := make([][]string, 0, len(flows))
	for _, f := range flows {
		rows = append(rows, []string{
			endpoint(f.SrcIP, f.SrcPort),
			endpoint(f.DstIP, f.DstPort),
			f.Protocol,
			FormatBytes(f.Stats.Bytes),
			FormatBits(f.Stats.Throughput),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Source", "Destination", "Proto", "Traffic", "Thpt").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == colTraffic || col == colThpt:
				return numberStyle
			}
			return cellStyle
		})

	title := titleStyle.Render(fmt.Sprintf("%d flows, %d hosts, %s in %s packets",
		totals.ActiveFlows, totals.ActiveHosts,
		FormatBytes(totals.BytesProcessed), humanize.Comma(int64(totals.PacketsProcessed))))
	return lipgloss.JoinVertical(lipgloss.Left, title, t.Render())
}

// Monitor is the state the console reads.
type Monitor interface {
	Flows() []flowengine.FlowView
	Totals() flowengine.Totals
}

// Run redraws the table on w every interval until ctx is done.
func Run(ctx context.Context, w io.Writer, m Monitor, interval time.Duration, top int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Clear the screen and move the cursor home.
		fmt.Fprint(w, "\033[H\033[2J")
		fmt.Fprintln(w, Render(m.Flows(), m.Totals(), flowengine.SortByBytes, top))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
