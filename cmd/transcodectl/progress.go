package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"media-transcoder/internal/events"
)

// terminalWidth reports whether w is an interactive terminal and, if so,
// how wide it is.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		width = 80
	}
	return width, true
}

type presetRow struct {
	state   string
	percent *float64
	fps     *float64
	note    string
	// lastDecile is the last 10% step printed in line mode.
	lastDecile int
}

// progressView renders transcode events. On a terminal it redraws one
// bar per preset in place; otherwise it prints a line per state change
// and per 10% of progress.
type progressView struct {
	out         io.Writer
	interactive bool
	width       int
	order       []string
	rows        map[string]*presetRow
	drawn       int
}

func newProgressView(out io.Writer, presetNames []string) *progressView {
	width, interactive := terminalWidth(out)
	v := &progressView{
		out:         out,
		interactive: interactive,
		width:       width,
		order:       presetNames,
		rows:        make(map[string]*presetRow, len(presetNames)),
	}
	for _, name := range presetNames {
		v.rows[name] = &presetRow{state: "pending", lastDecile: -1}
	}
	return v
}

func (v *progressView) Event(ev events.Event) {
	if ev.Terminal() {
		v.terminal(ev)
		return
	}

	row, ok := v.rows[ev.Preset]
	if !ok {
		return
	}
	stateChanged := ev.State != "" && ev.State != row.state
	if ev.State != "" {
		row.state = ev.State
	} else if row.state == "pending" {
		row.state = "running"
		stateChanged = true
	}
	if ev.Percent != nil {
		row.percent = ev.Percent
	}
	if ev.FPS != nil {
		row.fps = ev.FPS
	}
	switch {
	case ev.ErrorMessage != "":
		row.note = ev.Code + ": " + ev.ErrorMessage
	case ev.Filename != "":
		row.note = ev.Filename
	}

	if v.interactive {
		v.redraw()
		return
	}

	decile := -1
	if row.percent != nil {
		decile = int(*row.percent) / 10
	}
	if stateChanged || decile > row.lastDecile {
		row.lastDecile = decile
		fmt.Fprintln(v.out, v.line(ev.Preset, row))
	}
}

func (v *progressView) terminal(ev events.Event) {
	if v.interactive {
		v.redraw()
	}
	switch ev.Type {
	case events.TypeComplete:
		fmt.Fprintf(v.out, "Done: %d of %d preset(s) completed\n", v.count("completed"), len(v.order))
	case events.TypeError:
		fmt.Fprintf(v.out, "Failed: %s: %s\n", ev.Code, ev.ErrorMessage)
	}
}

func (v *progressView) count(state string) int {
	n := 0
	for _, row := range v.rows {
		if row.state == state {
			n++
		}
	}
	return n
}

func (v *progressView) redraw() {
	if v.drawn > 0 {
		fmt.Fprintf(v.out, "\x1b[%dA", v.drawn)
	}
	for _, name := range v.order {
		fmt.Fprintf(v.out, "\r\x1b[2K%s\n", v.line(name, v.rows[name]))
	}
	v.drawn = len(v.order)
}

func (v *progressView) line(name string, row *presetRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-10s", name, row.state)

	if row.percent != nil {
		if v.interactive {
			b.WriteString(" " + bar(*row.percent, v.barWidth()))
		}
		fmt.Fprintf(&b, " %5.1f%%", *row.percent)
	}
	if row.fps != nil && row.state == "running" {
		fmt.Fprintf(&b, " %6.1f fps", *row.fps)
	}
	if row.note != "" {
		b.WriteString("  " + row.note)
	}

	line := b.String()
	if v.interactive && v.width > 0 && len(line) >= v.width {
		line = line[:v.width-1]
	}
	return line
}

func (v *progressView) barWidth() int {
	w := v.width - 50
	switch {
	case w < 10:
		return 10
	case w > 40:
		return 40
	}
	return w
}

// bar draws percent as a fixed-width gauge.
func bar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
