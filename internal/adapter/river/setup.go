package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// Queue sizing for the embedded worker. The order event worker only logs
// and forwards, so two workers keep the single SQLite connection uncontended.
const maxWorkers = 2

// Setup migrates River's queue tables on the shared handle and returns a
// client with the order event worker registered. The caller starts it with
// client.Start and drains it with client.Stop on shutdown.
func Setup(ctx context.Context, db *sql.DB) (*Client, error) {
	driver := riversqlite.New(db)

	if err := migrate(ctx, driver); err != nil {
		return nil, err
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &OrderWorker{})

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}
	return client, nil
}

// migrate applies River's internal schema (river_job and friends). It is
// independent of the goose migrations that own the workspace tables.
func migrate(ctx context.Context, driver *riversqlite.Driver) error {
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("running river migrations: %w", err)
	}
	return nil
}
