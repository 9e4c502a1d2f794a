package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ProgressBar renders a single-line percentage bar that is redrawn in place
type ProgressBar struct {
	percent  int
	message  string
	width    int
	writer   io.Writer
	colorSys ColorSystem
	drawn    bool
	mu       sync.Mutex
}

// NewProgressBar creates a new progress bar
func NewProgressBar(writer io.Writer, colorSys ColorSystem) *ProgressBar {
	if colorSys == nil {
		colorSys = NewPlainColorSystem()
	}
	return &ProgressBar{
		width:    barWidth(writer),
		writer:   writer,
		colorSys: colorSys,
	}
}

// barWidth sizes the bar to a third of the terminal, within 20..50 columns
func barWidth(w io.Writer) int {
	width := terminalWidth(w) / 3
	if width < 20 {
		return 20
	}
	if width > 50 {
		return 50
	}
	return width
}

// terminalWidth returns the width of w when it is a terminal, otherwise 80
func terminalWidth(w io.Writer) int {
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// Update redraws the bar at percent with message. Values outside 0..100 are clamped.
func (pb *ProgressBar) Update(percent int, message string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	pb.percent = percent
	if message != "" {
		pb.message = message
	}
	pb.render()
}

// Clear erases the bar so other output can be printed; the next Update redraws it
func (pb *ProgressBar) Clear() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.drawn {
		fmt.Fprint(pb.writer, "\r\033[K")
		pb.drawn = false
	}
}

// Finish leaves the bar on screen and moves to a new line
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.drawn {
		fmt.Fprintln(pb.writer)
		pb.drawn = false
	}
}

// Percent returns the last rendered value
func (pb *ProgressBar) Percent() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.percent
}

// render draws the bar; callers hold mu
func (pb *ProgressBar) render() {
	filledWidth := pb.width * pb.percent / 100
	filled := strings.Repeat("█", filledWidth)
	empty := strings.Repeat("░", pb.width-filledWidth)

	theme := pb.colorSys.Theme()
	bar := fmt.Sprintf("[%s%s]",
		pb.colorSys.Colorize(filled, theme.Success),
		pb.colorSys.Colorize(empty, theme.Muted))

	fmt.Fprintf(pb.writer, "\r\033[K%s %3d%% %s", bar, pb.percent, pb.message)
	pb.drawn = true
}
