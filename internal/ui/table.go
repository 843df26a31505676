package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"github.com/dropwire-io/dropwire/internal/files"
)

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func tableStyle() *table.Table {
	return table.New().
		Wrap(true).
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

func tableWidth(headers []string, rows [][]string) int {
	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > colWidths[i] {
				colWidths[i] = w
			}
		}
	}
	width := 0
	for _, w := range colWidths {
		width += w
	}
	return width + (len(headers) - 1) + (len(headers) * 2) + 2
}

func boxContentWidth(box lipgloss.Style, content string) int {
	max := 0
	for _, line := range strings.Split(content, "\n") {
		if w := lipgloss.Width(line); w > max {
			max = w
		}
	}
	return max + box.GetHorizontalFrameSize()
}

// FileTableItem is one row of a selected-files listing.
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// RenderFileTable prints the files about to be sent or about to be
// received, with a caption ("Files to send" / "Files to receive").
func RenderFileTable(items []FileTableItem, caption string) {
	if len(items) == 0 {
		fmt.Println(MutedStyle.Render("no files"))
		return
	}

	fmt.Println(SubtitleCaption(caption))

	headers := []string{"#", "Name", "Size", "Type"}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Index),
			item.Name,
			files.FormatSize(item.Size),
			item.Type,
		})
	}

	tbl := tableStyle().Headers(headers...).Rows(rows...)
	if w := tableWidth(headers, rows); w > terminalWidth() {
		tbl = tbl.Width(terminalWidth())
	}
	fmt.Println(tbl.Render())
}

func SubtitleCaption(s string) string {
	return lipgloss.NewStyle().Foreground(Secondary).Italic(true).Render(s)
}

// RenderSignalBox prints the encoded offer/answer string the caller must
// relay to the peer out-of-band, boxed so it's easy to copy.
func RenderSignalBox(title, signal string) {
	content := fmt.Sprintf("%s %s\n\n%s", IconLink, BoldStyle.Foreground(Primary).Render(title), signal)
	box := InfoBoxStyle
	if w := boxContentWidth(box, content); w > terminalWidth() {
		box = box.Width(terminalWidth() - 2)
	}
	fmt.Println(box.Render(content))
}

// RenderConnected prints a short success box once the handshake completes.
func RenderConnected() {
	content := fmt.Sprintf("%s connected to peer", IconSuccess)
	box := SuccessBoxStyle
	if w := boxContentWidth(box, content); w > terminalWidth() {
		box = box.Width(terminalWidth() - 2)
	}
	fmt.Println(box.Render(content))
}

// TransferSummary is the end-of-run report for a batch of transfers.
type TransferSummary struct {
	Status    string
	Files     int
	TotalSize int64
	Duration  time.Duration
	Speed     float64
}

// RenderTransferSummary renders the summary with go-pretty/v6's table
// writer rather than the lipgloss table the file listing uses: it's
// a one-off tabular report (metric/value pairs with footer-style
// alignment), the case go-pretty's renderer fits better than lipgloss's
// column-styling API.
func RenderTransferSummary(s TransferSummary) {
	w := prettytable.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(prettytable.Row{"Metric", "Value"})
	w.AppendRows([]prettytable.Row{
		{"Status", s.Status},
		{"Files", s.Files},
		{"Total size", files.FormatSize(s.TotalSize)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
		{"Avg speed", files.FormatSize(int64(s.Speed)) + "/s"},
	})
	w.SetStyle(prettytable.StyleLight)
	w.Render()
}
