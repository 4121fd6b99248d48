package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sluice-dev/sluice/internal/pipeline"
)

// terminalGate asks the operator to approve a cleaning plan on the
// controlling terminal. One mutex serializes questions so concurrent
// documents never interleave their prompts; a document waiting its turn
// costs nothing, since the batch runner already released its slot.
type terminalGate struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newTerminalGate(in io.Reader, out io.Writer) *terminalGate {
	return &terminalGate{in: bufio.NewReader(in), out: out}
}

func (g *terminalGate) Confirm(ctx context.Context, req pipeline.ConfirmRequest) (pipeline.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fmt.Fprintf(g.out, "\nreconnaissance finished for %s\n", req.DocumentID)
	if h := req.Hints; h != nil {
		fmt.Fprintf(g.out, "  content type:  %s\n", h.ContentType)
		fmt.Fprintf(g.out, "  regions found: %d\n", len(h.Regions))
		fmt.Fprintf(g.out, "  patterns:      %d\n", len(h.Patterns))
		if h.CoreContent != nil {
			fmt.Fprintf(g.out, "  core content:  lines %s\n", h.CoreContent)
		}
		for _, w := range h.Warnings {
			fmt.Fprintf(g.out, "  warning:       %s\n", w)
		}
	}
	fmt.Fprintf(g.out, "  checkpoint:    %s\n", req.Checkpoint.Result)
	for _, c := range req.Checkpoint.FailedCriteria() {
		fmt.Fprintf(g.out, "    %s: %s (wanted %s, got %s)\n", c.Severity, c.Name, c.Expected, c.Actual)
	}
	fmt.Fprintf(g.out, "  confidence:    %s, %s\n", req.Display, req.Display.Recommendation)
	fmt.Fprint(g.out, "proceed with cleaning? [y/N/type=<content type>] ")

	answer, err := g.readLine(ctx)
	if err != nil {
		return pipeline.Decision{}, err
	}

	answer = strings.TrimSpace(answer)
	lower := strings.ToLower(answer)
	switch {
	case lower == "y" || lower == "yes":
		return pipeline.Decision{Approved: true}, nil
	case strings.HasPrefix(lower, "type="):
		ct, err := parseContentType(answer[len("type="):])
		if err != nil {
			fmt.Fprintf(g.out, "%v\n", err)
			return pipeline.Decision{Note: "declined: bad content type override"}, nil
		}
		return pipeline.Decision{Approved: true, ContentType: ct}, nil
	default:
		return pipeline.Decision{Note: "declined at terminal"}, nil
	}
}

// readLine reads one line without holding the run hostage: the read
// happens in a goroutine and cancellation wins the race. An abandoned
// read lives until process exit, which is fine for a CLI.
func (g *terminalGate) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := g.in.ReadString('\n')
		ch <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", fmt.Errorf("reading decision: %w", res.err)
		}
		return res.line, nil
	}
}
