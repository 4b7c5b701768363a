package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/topicfeed/internal/router"
)

const insertUpdate = `
	INSERT INTO topic_updates (topic, payload, has_payload, received_at)
	VALUES ($1, $2, $3, $4)
`

// BatchSender is the subset of *pgxpool.Pool the recorder uses.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config contains batching settings.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns default batching settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics contains recorder counters.
type Metrics struct {
	Inserts int64
	Flushes int64
	Failed  int64 // rows lost to failed batches
	Errors  int64
}

// Recorder drains topic updates from a buffer and inserts them into the
// topic_updates table in batches.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	// Input from the router
	input *router.GrowableBuffer[router.Update]

	db BatchSender

	batchMu sync.Mutex
	batch   []updateRow
	metrics Metrics

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type updateRow struct {
	Topic      string
	Payload    []byte // nil stores NULL
	HasPayload bool
	ReceivedAt time.Time
}

// New creates a Recorder reading from input.
func New(cfg Config, input *router.GrowableBuffer[router.Update], db BatchSender, logger *slog.Logger) *Recorder {
	d := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		logger: logger,
		input:  input,
		db:     db,
		batch:  make([]updateRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming updates until Stop is called.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run(ctx)

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
}

// Stop closes the input, waits for the consumer, and flushes what is left
// using ctx for the final insert.
func (r *Recorder) Stop(ctx context.Context) error {
	r.input.Close()
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
		return ctx.Err()
	}

	for _, u := range r.input.DrainTo(0) {
		r.add(u)
	}
	if err := r.flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	r.logger.Info("recorder stopped")
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()

	flushTicker := time.NewTicker(r.cfg.FlushInterval)
	defer flushTicker.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			r.flush(ctx)
		case <-poll.C:
			for _, u := range r.input.DrainTo(r.cfg.BatchSize) {
				if r.add(u) {
					r.flush(ctx)
				}
			}
		}
	}
}

// add appends u to the batch and reports whether the batch is full.
func (r *Recorder) add(u router.Update) bool {
	row := transform(u)

	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	r.batch = append(r.batch, row)
	return len(r.batch) >= r.cfg.BatchSize
}

func transform(u router.Update) updateRow {
	row := updateRow{
		Topic:      u.Topic,
		HasPayload: u.HasPayload,
		ReceivedAt: u.ReceivedAt.UTC(),
	}
	if u.HasPayload {
		row.Payload = []byte(u.Payload)
	}
	return row
}

// flush writes the current batch. A failed batch is dropped and counted.
func (r *Recorder) flush(ctx context.Context) error {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return nil
	}
	rows := r.batch
	r.batch = make([]updateRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()
	err := r.insert(ctx, rows)

	r.batchMu.Lock()
	if err != nil {
		r.metrics.Errors++
		r.metrics.Failed += int64(len(rows))
	} else {
		r.metrics.Inserts += int64(len(rows))
		r.metrics.Flushes++
	}
	r.batchMu.Unlock()

	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(rows))
		return err
	}
	r.logger.Debug("flushed topic updates", "count", len(rows), "duration", time.Since(start))
	return nil
}

func (r *Recorder) insert(ctx context.Context, rows []updateRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertUpdate, row.Topic, row.Payload, row.HasPayload, row.ReceivedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert topic update: %w", err)
		}
	}
	return nil
}
