package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/metrics"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/pkg/errors"
)

const (
	StageBreadcrumb     = "breadcrumb"
	StageCategory       = "category"
	StageImage          = "image"
	StageTitle          = "title"
	StagePrice          = "price"
	StageSizes          = "sizes"
	StageSizeChart      = "size_chart"
	StageReviews        = "reviews"
	StageDescription    = "description"
	StageSpecifications = "specifications"
	StageCoordinated    = "coordinated_items"
)

// stageRunner isolates extraction stages from one another: a stage either
// yields its value or a fault, and a fault never reaches the caller.
type stageRunner struct {
	run     *runlog.Run
	metrics *metrics.Collector
	logger  *slog.Logger
}

// runStage executes fn as the named stage. Errors and panics are logged with
// a stack trace under message and reported as ok == false.
func runStage[T any](ctx context.Context, r stageRunner, name, message string, fn func() (T, error)) (result T, ok bool) {
	if err := ctx.Err(); err != nil {
		return result, false
	}

	start := time.Now()
	defer func() {
		r.metrics.ObserveStage(name, time.Since(start))
		if p := recover(); p != nil {
			r.fault(name, message, errors.Errorf("panic in %s stage: %v", name, p))
			var zero T
			result, ok = zero, false
		}
	}()

	v, err := fn()
	if err != nil {
		r.fault(name, message, errors.WithStack(err))
		return result, false
	}
	return v, true
}

func (r stageRunner) fault(stage, message string, err error) {
	r.metrics.StageFault(stage)
	r.run.LogError(fmt.Sprintf("%s: %v", message, err), err)
	r.logger.Debug("stage fault", "stage", stage, "error", err)
}
