package captcha

import (
	"context"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/telemetry"
	"errors"
	"fmt"
	"time"
)

const (
	report_solver_solve = "solver.solve"
	report_solver_tier  = "solver.tier"
)

// Solver runs its tiers in order and returns the first validated answer.
type Solver struct {
	tiers   []Tier
	timeout time.Duration
	tel     telemetry.API
}

// NewSolver creates a Solver, timeout bounds a whole Solve call and a zero
// value leaves only the caller's deadline.
func NewSolver(tel telemetry.API, timeout time.Duration, tiers ...Tier) Solver {
	assert.NotNil(tel)
	if len(tiers) == 0 {
		panic("expected at least one solving tier")
	}
	return Solver{
		tiers:   tiers,
		timeout: timeout,
		tel:     telemetry.NewScopedAPI("captcha", tel),
	}
}

// NewDefaultSolver chains the local heuristic pass, the remote service when
// configured and the local fallback pass.
func NewDefaultSolver(tel telemetry.API, clock chrono.API, timeout time.Duration, remote *RemoteOptions) Solver {
	tiers := []Tier{NewLocalSolver(LocalOptions{Name: "local"})}
	if remote != nil && remote.Endpoint != "" {
		tiers = append(tiers, NewRemoteSolver(*remote, clock, tel))
	}
	tiers = append(tiers, NewLocalSolver(LocalOptions{
		Name:       "local-fallback",
		Preprocess: FallbackPreprocess,
		MinScore:   0.45,
	}))
	return NewSolver(tel, timeout, tiers...)
}

func (s Solver) Solve(ctx context.Context, challenge Challenge, syntax Syntax) (Answer, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var errs []error
	for _, tier := range s.tiers {
		answer, err := tier.Solve(ctx, challenge, syntax)
		if err == nil {
			// tiers validate their own answers, this guards against a tier that does not
			err = syntax.Validate(answer.Text)
		}
		if err == nil {
			s.tel.ReportDebug("challenge solved", tier.Name(), answer.Confidence.String())
			return answer, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
		if ctx.Err() != nil {
			break
		}
		s.tel.ReportDebug(report_solver_tier, tier.Name(), err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		errs = append(errs, ctxErr)
	}
	err := fmt.Errorf("%w: %w", ErrChallengeUnsolved, errors.Join(errs...))
	s.tel.ReportWarning(report_solver_solve, err)
	return Answer{}, err
}
