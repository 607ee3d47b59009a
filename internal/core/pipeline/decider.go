package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"orderproof/internal/console"
)

// Decider answers the operator questions a batch may raise.
type Decider interface {
	ResumeFromCheckpoint(ctx context.Context, completed int) (bool, error)
	KeepSuspicious(ctx context.Context, suspicious []string) (bool, error)
	ExcludeDuplicates(ctx context.Context, duplicates []string) (bool, error)
}

// StaticDecider gives fixed answers; used by the worker and --yes runs.
type StaticDecider struct {
	Resume         bool
	Suspicious     bool
	SkipDuplicates bool
}

func (d StaticDecider) ResumeFromCheckpoint(context.Context, int) (bool, error) { return d.Resume, nil }
func (d StaticDecider) KeepSuspicious(context.Context, []string) (bool, error)   { return d.Suspicious, nil }
func (d StaticDecider) ExcludeDuplicates(context.Context, []string) (bool, error) {
	return d.SkipDuplicates, nil
}

// ConsoleDecider asks y/n questions on a terminal. It must share its
// LineReader with every other prompt reading the same input.
type ConsoleDecider struct {
	in  *console.LineReader
	out io.Writer
}

func NewConsoleDecider(in *console.LineReader, out io.Writer) *ConsoleDecider {
	return &ConsoleDecider{in: in, out: out}
}

func (d *ConsoleDecider) ResumeFromCheckpoint(ctx context.Context, completed int) (bool, error) {
	fmt.Fprintf(d.out, "Found checkpoint with %d processed order(s)\n", completed)
	return d.ask(ctx, "Resume from checkpoint? (y/n) [default: n]: ", false)
}

func (d *ConsoleDecider) KeepSuspicious(ctx context.Context, suspicious []string) (bool, error) {
	fmt.Fprintf(d.out, "%d order number(s) do not look like order numbers:\n", len(suspicious))
	listSome(d.out, suspicious)
	return d.ask(ctx, "Continue with all orders? (y/n) [default: y]: ", true)
}

func (d *ConsoleDecider) ExcludeDuplicates(ctx context.Context, duplicates []string) (bool, error) {
	fmt.Fprintf(d.out, "%d order(s) already in the report:\n", len(duplicates))
	listSome(d.out, duplicates)
	return d.ask(ctx, "Skip them? (y/n) [default: n]: ", false)
}

func listSome(w io.Writer, ids []string) {
	for i, id := range ids {
		if i == 5 {
			fmt.Fprintf(w, "  ... and %d more\n", len(ids)-5)
			return
		}
		fmt.Fprintf(w, "  - %s\n", id)
	}
}

func (d *ConsoleDecider) ask(ctx context.Context, prompt string, def bool) (bool, error) {
	fmt.Fprint(d.out, prompt)
	answer, err := d.in.ReadLine(ctx)
	if errors.Is(err, io.EOF) {
		// No terminal input: take the default.
		return def, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
