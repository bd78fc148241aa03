// Package display prints a periodic cross-exchange depth comparison to the console.
package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"perpdepth/internal/analytics"
	"perpdepth/internal/history"
)

const missing = "--"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Config lists what the table shows
type Config struct {
	Exchanges []string
	Coins     []string
	BpLevels  []int
	Interval  time.Duration
	Out       io.Writer
}

// Display renders one table per coin: a depth row per bp level and a spread
// row, one column per exchange
type Display struct {
	cfg   Config
	views history.ViewFunc
}

// New creates a Display writing to cfg.Out, or stdout when unset
func New(cfg Config, views history.ViewFunc) *Display {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Display{cfg: cfg, views: views}
}

// Render returns the tables for every coin
func (d *Display) Render() string {
	var b strings.Builder
	for i, coin := range d.cfg.Coins {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(titleStyle.Render(coin))
		b.WriteString("\n")
		b.WriteString(d.renderCoin(coin))
		b.WriteString("\n")
	}
	return b.String()
}

func (d *Display) renderCoin(coin string) string {
	depths := make([]*analytics.Depth, len(d.cfg.Exchanges))
	for i, exchange := range d.cfg.Exchanges {
		depths[i] = analytics.ComputeDepth(d.views(exchange, coin), d.cfg.BpLevels)
	}

	rows := make([][]string, 0, len(d.cfg.BpLevels)+1)
	for _, bp := range d.cfg.BpLevels {
		row := []string{fmt.Sprintf("±%dbp depth", bp)}
		for _, depth := range depths {
			if depth == nil {
				row = append(row, missing)
				continue
			}
			row = append(row, depth.Bands[bp].TotalSize.StringFixed(4))
		}
		rows = append(rows, row)
	}

	spread := []string{"spread (bps)"}
	for _, depth := range depths {
		if depth == nil || !depth.TopOfBook.SpreadBps.Valid {
			spread = append(spread, missing)
			continue
		}
		spread = append(spread, depth.TopOfBook.SpreadBps.Decimal.StringFixed(2))
	}
	rows = append(rows, spread)

	headers := append([]string{""}, d.cfg.Exchanges...)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return labelStyle
			default:
				return cellStyle
			}
		}).
		String()
}

// Run prints the tables every interval until ctx is cancelled
func (d *Display) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Fprintln(d.cfg.Out)
			fmt.Fprint(d.cfg.Out, d.Render())
		}
	}
}
