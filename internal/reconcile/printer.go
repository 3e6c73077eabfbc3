package reconcile

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/dokzlo13/cloudsync/internal/diff"
)

// Printer writes rendered diffs for humans. A nil Printer prints nothing.
type Printer struct {
	out       io.Writer
	header    *color.Color
	added     *color.Color
	unmanaged *color.Color
	change    *color.Color
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, colors bool) *Printer {
	p := &Printer{
		out:       out,
		header:    color.New(color.FgCyan, color.Bold),
		added:     color.New(color.FgGreen),
		unmanaged: color.New(color.FgYellow),
		change:    color.New(color.FgWhite),
	}
	for _, c := range []*color.Color{p.header, p.added, p.unmanaged, p.change} {
		if colors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Resource prints the diffs for one resource.
func (p *Printer) Resource(name string, diffs []diff.Diff) {
	if p == nil || len(diffs) == 0 {
		return
	}

	switch {
	case diff.Only(diffs, diff.Unmanaged):
		p.unmanaged.Fprintln(p.out, diffs[0].Render())
	case diff.Only(diffs, diff.Added):
		p.added.Fprintln(p.out, diffs[0].Render())
	default:
		p.header.Fprintf(p.out, "%s:\n", name)
		for _, d := range diffs {
			p.change.Fprintln(p.out, diff.Indent(d.Render(), "\t"))
		}
	}
}

// Line prints a plain line.
func (p *Printer) Line(format string, args ...any) {
	if p == nil {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}
