package guard

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task pairs an operation key with the work to run under it.
type Task struct {
	Key  string
	Op   Operation
	Opts []ExecOption
}

// ExecuteAll runs every task concurrently through the service. Results are
// returned in task order. The first task to fail cancels the context the
// remaining operations observe, and its error is returned.
//
// Tasks sharing an operation key share one breaker and history; their
// outcomes interleave without blocking each other.
func (s *Service) ExecuteAll(ctx context.Context, tasks []Task) ([]any, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]any, len(tasks))

	for i, task := range tasks {
		g.Go(func() error {
			v, err := s.Execute(gctx, task.Key, task.Op, task.Opts...)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
