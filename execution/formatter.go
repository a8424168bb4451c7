package execution

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	statusStyle  = color.New(color.FgMagenta, color.Bold)
	nodeStyle    = color.New(color.FgCyan)
	successStyle = color.New(color.FgGreen)
	errorStyle   = color.New(color.FgRed)
	mutedStyle   = color.New(color.FgWhite, color.Faint)
)

// Formatter renders Synchronizer events as colored monitoring output, one
// line per event.
type Formatter struct {
	out io.Writer
}

func NewFormatter(out io.Writer) *Formatter {
	return &Formatter{out: out}
}

// Attach subscribes the formatter to a Synchronizer's emitters and returns
// a function that detaches it.
func (f *Formatter) Attach(s *Synchronizer) func() {
	unsubscribes := []func(){
		s.StateChanges.Subscribe(f.PrintStateChange),
		s.NodeUpdates.Subscribe(f.PrintNodeUpdate),
		s.LogLines.Subscribe(f.PrintLogLine),
	}
	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}

func (f *Formatter) PrintStateChange(change StateChange) {
	fmt.Fprintf(f.out, "%s %s %s %s\n",
		f.timestamp(),
		statusStyle.Sprint(strings.ToUpper(string(change.Current))),
		mutedStyle.Sprint(change.ExecutionID),
		mutedStyle.Sprintf("(was %s)", change.Previous))
}

func (f *Formatter) PrintNodeUpdate(update NodeUpdate) {
	label := nodeStyle.Sprint(update.NodeID)
	switch update.Status {
	case NodeCompleted:
		duration := ""
		if update.DurationMillis > 0 {
			duration = mutedStyle.Sprintf(" %s", (time.Duration(update.DurationMillis) * time.Millisecond).String())
		}
		fmt.Fprintf(f.out, "%s %s %s%s\n", f.timestamp(), successStyle.Sprint("✔"), label, duration)
	case NodeFailed:
		fmt.Fprintf(f.out, "%s %s %s %s\n", f.timestamp(), errorStyle.Sprint("✘"), label, errorStyle.Sprint(update.Error))
	default:
		fmt.Fprintf(f.out, "%s %s %s\n", f.timestamp(), mutedStyle.Sprint("▸"), label)
	}
}

func (f *Formatter) PrintLogLine(line LogLine) {
	style := mutedStyle
	if line.Level == "error" {
		style = errorStyle
	}
	fmt.Fprintf(f.out, "%s %s\n", f.timestamp(), style.Sprint(line.Message))
}

func (f *Formatter) timestamp() string {
	return mutedStyle.Sprint(time.Now().Format(time.TimeOnly))
}
