package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/toolbridge/types"
)

// StepFunc runs one step. results holds every step settled by earlier levels
// and must be treated as read-only. A step fails when it returns an error or
// a result with StepStatusError.
type StepFunc func(ctx context.Context, step types.CompositeStep, results map[string]*types.StepResult) (*types.StepResult, error)

// StepError reports the step that aborted a run without partial results.
type StepError struct {
	Step   string
	Result *types.StepResult
	Err    error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
	}
	if e.Result != nil && e.Result.Error != "" {
		return fmt.Sprintf("step %q failed: %s", e.Step, e.Result.Error)
	}
	return fmt.Sprintf("step %q failed", e.Step)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// DAGExecutor runs composite steps level by level. Level N+1 starts only
// after every step of level N has settled.
type DAGExecutor struct {
	maxConcurrency int
	logger         *zap.Logger
}

// NewDAGExecutor creates a new DAG executor. maxConcurrency <= 0 means no
// limit within a level.
func NewDAGExecutor(maxConcurrency int, logger *zap.Logger) *DAGExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DAGExecutor{
		maxConcurrency: maxConcurrency,
		logger:         logger.With(zap.String("component", "dag_executor")),
	}
}

// Execute runs steps and returns their results keyed by store_as.
//
// Without partialResults the first failing step cancels its siblings and the
// run returns a *StepError. With partialResults the failure is recorded and
// steps depending on it, directly or transitively, are marked skipped.
// Cancellation of ctx always returns ctx.Err() and no results.
func (e *DAGExecutor) Execute(ctx context.Context, steps []types.CompositeStep, partialResults bool, fn StepFunc) (map[string]*types.StepResult, error) {
	levels, err := TopologicalSort(steps)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*types.StepResult, len(steps))
	for n, level := range levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		settled, err := e.runLevel(ctx, level, results, partialResults, fn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			e.logger.Debug("level aborted", zap.Int("level", n), zap.Error(err))
			return nil, err
		}

		// 层内结果在 Wait 之后统一合并
		for i, step := range level {
			results[step.StoreAs] = settled[i]
		}
		e.logger.Debug("level completed",
			zap.Int("level", n),
			zap.Strings("steps", level.Keys()),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return results, nil
}

func (e *DAGExecutor) runLevel(ctx context.Context, level Level, results map[string]*types.StepResult, partialResults bool, fn StepFunc) ([]*types.StepResult, error) {
	settled := make([]*types.StepResult, len(level))

	g, gctx := errgroup.WithContext(ctx)
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}

	for i, step := range level {
		if blocked := failedDependency(step, results); blocked != "" {
			settled[i] = &types.StepResult{
				Status: types.StepStatusSkipped,
				Reason: types.SkippedDueToDependencyFailure,
			}
			e.logger.Debug("skipping step", zap.String("step", step.StoreAs), zap.String("failed_dependency", blocked))
			continue
		}

		g.Go(func() error {
			res, err := fn(gctx, step, results)
			if res == nil {
				res = &types.StepResult{}
			}
			if err != nil {
				res.Status = types.StepStatusError
				if res.Error == "" {
					res.Error = err.Error()
				}
			} else if res.Status == "" {
				res.Status = types.StepStatusOK
			}
			settled[i] = res

			if res.Status != types.StepStatusError || partialResults {
				return nil
			}
			// 返回错误会取消同层其余步骤
			return &StepError{Step: step.StoreAs, Result: res, Err: err}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return settled, nil
}

func failedDependency(step types.CompositeStep, results map[string]*types.StepResult) string {
	for _, dep := range step.DependsOn {
		if r, ok := results[dep]; ok && r.Status != types.StepStatusOK {
			return dep
		}
	}
	return ""
}
