// Package gates runs the configured quality-gate commands after each coding
// step and turns their results into feedback for the next attempt.
package gates

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"time"

	"github.com/flowsmith/flowsmith/internal/config"
	"github.com/flowsmith/flowsmith/internal/domain"
)

// Runner executes quality gates in a working directory
type Runner struct {
	Gates   []config.GateConfig
	Dir     string
	Timeout time.Duration
}

// RunAll executes every configured gate in order and returns one result per
// gate. All gates run even after a failure, so a single attempt surfaces the
// complete set of problems instead of just the first one. The returned error
// is non-nil only when the context was cancelled mid-run.
func (r *Runner) RunAll(ctx context.Context) ([]domain.GateResult, error) {
	results := make([]domain.GateResult, 0, len(r.Gates))
	for _, g := range r.Gates {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := r.runOne(ctx, g)
		if res.Passed {
			log.Printf("gate %q passed in %s", g.Name, res.Duration.Round(time.Millisecond))
		} else {
			log.Printf("gate %q FAILED in %s", g.Name, res.Duration.Round(time.Millisecond))
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, g config.GateConfig) domain.GateResult {
	gateCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		gateCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(gateCtx, "bash", "-lc", g.Command)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	output := string(out)
	if gateCtx.Err() == context.DeadlineExceeded {
		output = fmt.Sprintf("%s\n(gate timed out after %s)", output, r.Timeout)
		err = gateCtx.Err()
	}

	return domain.GateResult{
		Name:     g.Name,
		Command:  g.Command,
		Passed:   err == nil,
		Output:   output,
		Duration: elapsed,
	}
}
