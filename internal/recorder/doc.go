// Package recorder persists routed topic updates to PostgreSQL.
//
// A Recorder drains a router.GrowableBuffer and inserts rows into the
// topic_updates table using pgx batches, flushing when the batch is full or
// the flush interval elapses. Updates without a payload are stored with a
// NULL payload and has_payload = false.
package recorder
