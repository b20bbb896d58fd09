package ui

import (
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerolethanh/netspy/internal/record"
)

func TestTableUpdate(t *testing.T) {
	r := NewTableRenderer(tview.NewApplication(), "0x0000DEAD")
	assert.Equal(t, 1, r.table.GetRowCount())

	r.update([]record.UserRecord{
		record.New("alice", "ssh", 120.5, 30.25),
		record.New("bob", "scp", 1, 2),
	})
	require.Equal(t, 3, r.table.GetRowCount())
	assert.Equal(t, "Username", r.table.GetCell(0, 0).Text)
	assert.Equal(t, "Upload Speed", r.table.GetCell(0, 3).Text)
	assert.Equal(t, "alice", r.table.GetCell(1, 0).Text)
	assert.Equal(t, "ssh", r.table.GetCell(1, 1).Text)
	assert.Equal(t, "120.50 KB/s", r.table.GetCell(1, 2).Text)
	assert.Equal(t, "30.25 KB/s", r.table.GetCell(1, 3).Text)
	assert.Contains(t, r.summary.GetText(true), "Users: 2")

	r.update(nil)
	assert.Equal(t, 1, r.table.GetRowCount())
}

func TestTableRenderAfterStop(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(80, 24)
	app := tview.NewApplication().SetScreen(screen)
	r := NewTableRenderer(app, "0x0000DEAD")

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	require.NoError(t, r.Render([]record.UserRecord{record.New("alice", "ssh", 1, 2)}))
	r.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("table view did not stop")
	}
	assert.ErrorIs(t, r.Render(nil), ErrStopped)
}
