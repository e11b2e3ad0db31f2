// Package progress draws a one-line file progress bar on a terminal.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/muesli/termenv"
)

// DefaultWidth is the bar width in columns.
const DefaultWidth = 40

// Options configures a Bar.
type Options struct {
	Width   int
	Profile termenv.Profile
}

// Bar reports how many archives have been scanned. It is safe for
// concurrent use; updates arriving out of order are ignored.
type Bar struct {
	mu       sync.Mutex
	w        io.Writer
	model    progress.Model
	started  time.Time
	done     int
	drawn    bool
	finished bool
	now      func() time.Time
}

// New returns a bar writing to w, usually stderr.
func New(w io.Writer, opts Options) *Bar {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	model := progress.New(
		progress.WithSolidFill("6"),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
		progress.WithColorProfile(opts.Profile),
	)
	return &Bar{w: w, model: model, started: time.Now(), now: time.Now}
}

// Update redraws the bar for done of total files.
func (b *Bar) Update(done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished || done < b.done {
		return
	}
	b.done = done

	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	elapsed := b.now().Sub(b.started).Truncate(time.Second)
	fmt.Fprintf(b.w, "\r[%s] %s %d/%d", formatElapsed(elapsed), b.model.ViewAs(pct), done, total)
	b.drawn = true
}

// Finish erases the bar. Later updates are ignored.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return
	}
	b.finished = true
	if b.drawn {
		fmt.Fprint(b.w, "\r\x1b[2K")
	}
}

func formatElapsed(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
