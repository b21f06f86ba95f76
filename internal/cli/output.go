// Package cli holds presentation helpers shared by the tether commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Interactive reports whether stdout is a terminal, gating colored output.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// FramePrinter renders protocol frames for humans, coloring resolves,
// rejects, and aborts differently when on a TTY. Other frames are printed
// uncolored.
type FramePrinter struct {
	out     io.Writer
	profile termenv.Profile
}

// NewFramePrinter builds a printer for the writer. Color is disabled when
// the process is not attached to a terminal.
func NewFramePrinter(out io.Writer) *FramePrinter {
	profile := termenv.Ascii
	if Interactive() {
		profile = termenv.ColorProfile()
	}
	return &FramePrinter{out: out, profile: profile}
}

// Print writes one frame with a directional marker.
func (p *FramePrinter) Print(direction, frame string) {
	marker := direction + " "
	styled := termenv.String(frame)
	switch {
	case strings.HasPrefix(frame, `["reject"`):
		styled = styled.Foreground(p.profile.Color("#f87171"))
	case strings.HasPrefix(frame, `["resolve"`):
		styled = styled.Foreground(p.profile.Color("#34d399"))
	case strings.HasPrefix(frame, `["abort"`):
		styled = styled.Foreground(p.profile.Color("#fbbf24"))
	}
	fmt.Fprintln(p.out, marker+styled.String())
}

// Errorf writes a highlighted error line.
func (p *FramePrinter) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.out, termenv.String(msg).Foreground(p.profile.Color("#f87171")).String())
}
