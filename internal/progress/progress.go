// Package progress renders a terminal progress bar for long running apply
// steps. A nil *Bar is valid and does nothing.
package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar with max steps writing to w. The bar only draws when
// visible is true.
func New(w io.Writer, max int, description string, visible bool) *Bar {
	return &Bar{bar: progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)}
}

// NewStderr returns a bar on stderr that is visible only when stderr is a
// terminal.
func NewStderr(max int, description string) *Bar {
	return New(os.Stderr, max, description, term.IsTerminal(int(os.Stderr.Fd())))
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
