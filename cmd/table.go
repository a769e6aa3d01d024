package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table heading. Numbers line up on the right and wide text
// columns wrap at maxWidth.
type column struct {
	title    string
	number   bool
	maxWidth int
}

var (
	projectColumns = []column{
		{title: "Name"},
		{title: "Description", maxWidth: 48},
	}
	trackColumns = []column{
		{title: "Track"},
		{title: "Format"},
		{title: "Length", number: true},
		{title: "Size", number: true},
	}
	scheduleColumns = []column{
		{title: "Track"},
		{title: "Starts", number: true},
		{title: "From", number: true},
		{title: "Ends", number: true},
	}
)

// printTable writes rows under columns to w; short rows are padded
func printTable(w io.Writer, columns []column, rows [][]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		header = append(header, col.title)
		cfg := table.ColumnConfig{Number: i + 1, WidthMax: col.maxWidth}
		if col.number {
			cfg.Align = text.AlignRight
		}
		if col.maxWidth > 0 {
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs = append(configs, cfg)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		row := make(table.Row, len(columns))
		for i := range row {
			row[i] = ""
			if i < len(cells) {
				row[i] = cells[i]
			}
		}
		tw.AppendRow(row)
	}
	tw.Render()
}
