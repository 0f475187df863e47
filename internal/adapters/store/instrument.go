package store

import (
	"context"
	"time"

	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/pkg/metrics"
)

type instrumented struct {
	Client
}

// Instrument wraps c so every call records latency and classified failures.
func Instrument(c Client) Client {
	return instrumented{Client: c}
}

func observe(rel Relation, op string, start time.Time, err error) {
	metrics.RecordStoreCall(string(rel), op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(string(rel), errs.KindOf(err).String())
	}
}

func (i instrumented) Select(ctx context.Context, q Query) ([]Row, error) {
	start := time.Now()
	rows, err := i.Client.Select(ctx, q)
	observe(q.Relation, "select", start, err)
	return rows, err
}

func (i instrumented) Insert(ctx context.Context, rel Relation, row Row) (Row, error) {
	start := time.Now()
	out, err := i.Client.Insert(ctx, rel, row)
	observe(rel, "insert", start, err)
	return out, err
}

func (i instrumented) Update(ctx context.Context, rel Relation, filters []Filter, patch Row) ([]Row, error) {
	start := time.Now()
	rows, err := i.Client.Update(ctx, rel, filters, patch)
	observe(rel, "update", start, err)
	return rows, err
}
