package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// printer writes styled status lines. Hub console text goes to out as-is.
type printer struct {
	out io.Writer
	err io.Writer

	success *color.Color
	failure *color.Color
	warning *color.Color
	info    *color.Color
	muted   *color.Color
}

func newPrinter(out, err io.Writer) *printer {
	return &printer{
		out:     out,
		err:     err,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		warning: color.New(color.FgYellow),
		info:    color.New(color.FgCyan),
		muted:   color.New(color.FgHiBlack),
	}
}

func (p *printer) Success(format string, args ...any) {
	p.success.Fprint(p.out, "✓ ")
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) Failure(format string, args ...any) {
	p.failure.Fprint(p.err, "✗ ")
	fmt.Fprintf(p.err, format+"\n", args...)
}

func (p *printer) Warning(format string, args ...any) {
	p.warning.Fprint(p.err, "! ")
	fmt.Fprintf(p.err, format+"\n", args...)
}

func (p *printer) Info(format string, args ...any) {
	p.info.Fprintf(p.err, format+"\n", args...)
}

func (p *printer) Muted(format string, args ...any) {
	p.muted.Fprintf(p.err, format+"\n", args...)
}

// Console writes hub output verbatim.
func (p *printer) Console(text string) {
	fmt.Fprint(p.out, text)
}
