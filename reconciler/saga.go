package reconciler

import (
	"context"
	"fmt"
	"log"
)

// sagaStep is one forward step of a multi-step workflow, optionally paired
// with a compensating action.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes steps in order. On the first failure it runs the
// compensations of every completed step in reverse and returns the original
// error. Compensations are best-effort: their failures are logged and never
// mask the error that triggered them.
func runSaga(ctx context.Context, steps []sagaStep) error {
	var done []sagaStep
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				c := done[i]
				if c.compensate == nil {
					continue
				}
				if cerr := c.compensate(ctx); cerr != nil {
					log.Printf("saga: compensation for %s failed: %v", c.name, cerr)
				}
			}
			return fmt.Errorf("%s: %w", s.name, err)
		}
		done = append(done, s)
	}
	return nil
}
