package ui

import (
	"fmt"
	"io"

	"github.com/zerolethanh/netspy/internal/record"
)

// ConsoleRenderer prints one line per record.
type ConsoleRenderer struct {
	w io.Writer
}

// NewConsoleRenderer returns a renderer writing to w.
func NewConsoleRenderer(w io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{w: w}
}

// Render prints records in slot order and stops at the first write error.
func (c *ConsoleRenderer) Render(records []record.UserRecord) error {
	for _, r := range records {
		if _, err := fmt.Fprintf(c.w, "Username: %s, Command: %s, Download Speed: %.2f KB/s, Upload Speed: %.2f KB/s\n",
			r.UsernameString(), r.CommandString(), r.DownloadSpeed, r.UploadSpeed); err != nil {
			return err
		}
	}
	return nil
}
