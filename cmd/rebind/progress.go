package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// progressRenderer prints conversion progress. On a terminal it rewrites a
// single status line; otherwise it prints one line per stage change so logs
// stay readable.
type progressRenderer struct {
	out       io.Writer
	tty       bool
	lastStage string
	active    bool
}

func newProgressRenderer(out io.Writer) *progressRenderer {
	tty := false
	if f, ok := out.(*os.File); ok {
		fd := f.Fd()
		tty = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	return &progressRenderer{out: out, tty: tty}
}

func (r *progressRenderer) stage(name string, percent int) {
	r.lastStage = name
	if r.tty {
		fmt.Fprintf(r.out, "\r\033[K%s... %3d%%", name, percent)
		r.active = true
		return
	}
	fmt.Fprintf(r.out, "%s...\n", name)
}

func (r *progressRenderer) progress(percent int) {
	if !r.tty {
		return
	}
	fmt.Fprintf(r.out, "\r\033[K%s... %3d%%", r.lastStage, percent)
	r.active = true
}

func (r *progressRenderer) finish() {
	if r.tty && r.active {
		fmt.Fprint(r.out, "\r\033[K")
		r.active = false
	}
}
