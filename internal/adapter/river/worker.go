package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// OrderWorker processes order event jobs from the River queue.
// For now it logs the placed order; future versions will dispatch to
// billing exports or notification systems.
type OrderWorker struct {
	river.WorkerDefaults[OrderJobArgs]
}

// Work processes a single order job.
func (w *OrderWorker) Work(ctx context.Context, job *river.Job[OrderJobArgs]) error {
	slog.InfoContext(ctx, "processing order event",
		"transition", job.Args.Transition,
		"order_id", job.Args.OrderID,
		"consumer_id", job.Args.ConsumerID,
		"occasion_id", job.Args.OccasionID,
		"total", job.Args.Total,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
