package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func newTestBar(buf *bytes.Buffer) *Bar {
	b := New(buf, Options{Width: 10, Profile: termenv.Ascii})
	start := b.started
	b.now = func() time.Time { return start.Add(65 * time.Second) }
	return b
}

func TestBarUpdate(t *testing.T) {
	var buf bytes.Buffer
	b := newTestBar(&buf)

	b.Update(3, 10)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\r[00:01:05] "), out)
	assert.True(t, strings.HasSuffix(out, " 3/10"), out)
}

func TestBarIgnoresStaleUpdates(t *testing.T) {
	var buf bytes.Buffer
	b := newTestBar(&buf)

	b.Update(5, 10)
	buf.Reset()
	b.Update(4, 10)
	assert.Empty(t, buf.String())
}

func TestBarFinish(t *testing.T) {
	var buf bytes.Buffer
	b := newTestBar(&buf)

	b.Finish()
	assert.Empty(t, buf.String(), "nothing to erase before the first draw")

	b = newTestBar(&buf)
	b.Update(1, 1)
	buf.Reset()
	b.Finish()
	assert.Equal(t, "\r\x1b[2K", buf.String())

	buf.Reset()
	b.Update(1, 1)
	b.Finish()
	assert.Empty(t, buf.String())
}

func TestBarConcurrentUpdates(t *testing.T) {
	var buf bytes.Buffer
	b := newTestBar(&buf)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Update(i, 50)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.done)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00", formatElapsed(0))
	assert.Equal(t, "01:02:03", formatElapsed(time.Hour+2*time.Minute+3*time.Second))
}
