// Package report renders the live terminal output for a run: the progress
// bar, the "found" lines, and the framing boxes. It owns output ordering but
// not synchronization; the engine calls it under its serialization lock.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"subhunt/internal/results"
)

// Row is one key/value line inside a report box.
type Row struct {
	Key   string
	Value string
}

// Console writes human-readable progress and results to a terminal.
type Console struct {
	out     io.Writer
	bar     *progressbar.ProgressBar
	tty     bool
	header  bool
	lines   map[string]int
	printed int
}

// NewConsole creates a Console rendering to out for a run of total
// candidates.
func NewConsole(out io.Writer, total int) *Console {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetDescription("Fuzzing"),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[cyan]=[reset]",
			SaucerHead:    "[cyan]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	return &Console{
		out:   out,
		bar:   bar,
		tty:   tty,
		lines: make(map[string]int),
	}
}

// Progress redraws the progress bar at done of total completed candidates.
func (c *Console) Progress(done, total int) {
	_ = c.bar.Set(done)
}

// Found erases the progress line and prints a newly discovered host.
func (c *Console) Found(host string, e results.Entry) {
	_ = c.bar.Clear()
	if !c.header {
		color.New(color.FgCyan, color.Bold).Fprintln(c.out, "\n------- Found Subdomains -------")
		c.header = true
	}
	fmt.Fprintln(c.out, foundLine(host, e))
	c.lines[host] = c.printed
	c.printed++
}

// Update rewrites a previously printed host line in place after size
// enrichment. On non-terminal output the refreshed line is printed again
// instead.
func (c *Console) Update(host string, e results.Entry) {
	idx, ok := c.lines[host]
	if !ok {
		c.Found(host, e)
		return
	}
	if !c.tty {
		_ = c.bar.Clear()
		fmt.Fprintln(c.out, foundLine(host, e))
		return
	}
	up := c.printed - idx
	_ = c.bar.Clear()
	fmt.Fprintf(c.out, "\x1b[%dA\r\x1b[2K%s\x1b[%dB\r", up, foundLine(host, e), up)
}

// Finish clears the bar and closes the found-subdomains frame.
func (c *Console) Finish() {
	_ = c.bar.Clear()
	if c.header {
		color.New(color.FgCyan, color.Bold).Fprintln(c.out, "--------------------------------")
	}
}

// Summary prints the end-of-run line.
func (c *Console) Summary(found int, elapsed time.Duration, cancelled bool) {
	if cancelled {
		color.New(color.FgYellow).Fprintf(c.out, "\nFuzzing cancelled after %.2fs, %d subdomain(s) found so far.\n",
			elapsed.Seconds(), found)
		return
	}
	color.New(color.FgGreen).Fprintf(c.out, "\nFuzzing completed in %.2fs, %d subdomain(s) found.\n",
		elapsed.Seconds(), found)
}

// Box prints a bordered key/value section, used for the run configuration
// and scan summaries.
func (c *Console) Box(title string, rows []Row) {
	width := len(title) + 4
	keyWidth := 0
	for _, r := range rows {
		if n := 6 + len(r.Key) + len(r.Value); n > width {
			width = n
		}
		if len(r.Key) > keyWidth {
			keyWidth = len(r.Key)
		}
	}

	head := color.New(color.FgCyan)
	head.Fprintf(c.out, "\n--- %s ", title)
	for i := len(title) + 5; i < width; i++ {
		head.Fprint(c.out, "-")
	}
	fmt.Fprintln(c.out)
	for _, r := range rows {
		fmt.Fprintf(c.out, "  %-*s : %s\n", keyWidth, r.Key, r.Value)
	}
	for i := 0; i < width; i++ {
		head.Fprint(c.out, "-")
	}
	fmt.Fprintln(c.out)
}

// Banner prints the startup banner.
func (c *Console) Banner(version string) {
	color.New(color.FgCyan, color.Bold).Fprintf(c.out, banner, version)
}

const banner = `
           _     _                 _
 ___ _   _| |__ | |__  _   _ _ __ | |_
/ __| | | | '_ \| '_ \| | | | '_ \| __|
\__ \ |_| | |_) | | | | |_| | | | | |_
|___/\__,_|_.__/|_| |_|\__,_|_| |_|\__| v%s

`

func foundLine(host string, e results.Entry) string {
	hostColored := color.New(color.FgCyan).Sprint(host)
	if e.Protocol == "" {
		return fmt.Sprintf("  %s : [DNS]", hostColored)
	}
	line := fmt.Sprintf("  %s : [%s] %s", hostColored, e.Protocol, statusTag(e.Status))
	if e.Size != nil {
		line += fmt.Sprintf(" (%d bytes)", *e.Size)
	}
	return line
}

// statusTag colors an HTTP status by its class, matching the usual
// green/yellow/blue/red severity scheme.
func statusTag(status int) string {
	var c *color.Color
	switch {
	case status >= 200 && status < 300:
		c = color.New(color.FgGreen)
	case status >= 300 && status < 400:
		c = color.New(color.FgYellow)
	case status >= 400 && status < 500:
		c = color.New(color.FgBlue)
	case status >= 500 && status < 600:
		c = color.New(color.FgRed)
	default:
		return fmt.Sprintf("[%d]", status)
	}
	return c.Sprintf("[%d]", status)
}
