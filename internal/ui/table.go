// Package ui renders user activity records for an operator.
package ui

import (
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zerolethanh/netspy/internal/record"
)

// ErrStopped is returned by Render once the table application has exited.
var ErrStopped = errors.New("netspy: table view stopped")

var tableHeaders = []string{"Username", "Command", "Download Speed", "Upload Speed"}

// TableRenderer shows records in a full screen table.
type TableRenderer struct {
	app      *tview.Application
	summary  *tview.TextView
	table    *tview.Table
	root     *tview.Flex
	regionID string
	stopped  chan struct{}
}

// NewTableRenderer builds the table view. regionID labels the summary line.
func NewTableRenderer(app *tview.Application, regionID string) *TableRenderer {
	r := &TableRenderer{
		app:      app,
		summary:  createSummaryView(),
		table:    createRecordTable(),
		regionID: regionID,
		stopped:  make(chan struct{}),
	}
	r.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(r.summary, 3, 1, false).
		AddItem(r.table, 0, 1, true)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})
	r.update(nil)
	return r
}

// createSummaryView initializes the totals line above the table.
func createSummaryView() *tview.TextView {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("Waiting for records...")
	view.SetBorder(true).SetTitle(" 🌐 Network Activity ").SetTitleColor(tcell.ColorGreen)
	return view
}

// createRecordTable initializes the record table.
func createRecordTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" 👤 User Records ").SetTitleColor(tcell.ColorCadetBlue)
	return table
}

// Run shows the table until the user quits or Stop is called.
func (r *TableRenderer) Run() error {
	defer close(r.stopped)
	return r.app.SetRoot(r.root, true).Run()
}

// Stop exits Run.
func (r *TableRenderer) Stop() {
	r.app.Stop()
}

// Render queues a redraw with records and waits for it to be applied.
func (r *TableRenderer) Render(records []record.UserRecord) error {
	select {
	case <-r.stopped:
		return ErrStopped
	default:
	}

	drawn := make(chan struct{})
	go func() {
		r.app.QueueUpdateDraw(func() {
			r.update(records)
		})
		close(drawn)
	}()

	select {
	case <-drawn:
		return nil
	case <-r.stopped:
		return ErrStopped
	}
}

// update replaces the table contents. It must run on the application
// goroutine once Run has started.
func (r *TableRenderer) update(records []record.UserRecord) {
	r.table.Clear()
	for c, header := range tableHeaders {
		r.table.SetCell(0, c, tview.NewTableCell(header).SetTextColor(tcell.ColorYellow).SetSelectable(false).SetAlign(tview.AlignLeft))
	}

	var down, up float64
	for i, rec := range records {
		row := i + 1
		r.table.SetCell(row, 0, tview.NewTableCell(rec.UsernameString()).SetTextColor(tcell.ColorGreen))
		r.table.SetCell(row, 1, tview.NewTableCell(rec.CommandString()).SetTextColor(tcell.ColorWhite))
		r.table.SetCell(row, 2, tview.NewTableCell(formatSpeed(rec.DownloadSpeed)).SetTextColor(tcell.ColorWhite).SetAlign(tview.AlignRight))
		r.table.SetCell(row, 3, tview.NewTableCell(formatSpeed(rec.UploadSpeed)).SetTextColor(tcell.ColorWhite).SetAlign(tview.AlignRight))
		down += float64(rec.DownloadSpeed)
		up += float64(rec.UploadSpeed)
	}

	r.summary.SetText(fmt.Sprintf("[yellow]Region:[white] %s   |   [yellow]Users:[white] %d   |   [yellow]In:[white] %7.2f KB/s   |   [yellow]Out:[white] %7.2f KB/s   |   🕒 %s",
		r.regionID, len(records), down, up, time.Now().Format("15:04:05")))
}

func formatSpeed(kbps float32) string {
	return fmt.Sprintf("%.2f KB/s", kbps)
}
