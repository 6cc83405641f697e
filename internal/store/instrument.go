// instrument.go wraps a TableStore with Prometheus operation counters and
// latency histograms. Applied uniformly by New so backend packages never touch
// metrics themselves.
package store

import (
	"context"
	"time"

	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
)

type instrumentedStore struct {
	backend string
	next    TableStore
}

func instrument(backend string, next TableStore) TableStore {
	return &instrumentedStore{backend: backend, next: next}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	telemetry.StoreOperationsTotal.WithLabelValues(s.backend, op, outcome).Inc()
	telemetry.StoreOperationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
}

func (s *instrumentedStore) FetchTable(ctx context.Context, name string) (plan.Table, error) {
	start := time.Now()
	t, err := s.next.FetchTable(ctx, name)
	s.observe("fetch", start, err)
	return t, err
}

func (s *instrumentedStore) ReplaceTable(ctx context.Context, name string, t plan.Table) error {
	start := time.Now()
	err := s.next.ReplaceTable(ctx, name, t)
	s.observe("replace", start, err)
	return err
}

func (s *instrumentedStore) AppendRow(ctx context.Context, name string, header, row []string) error {
	start := time.Now()
	err := s.next.AppendRow(ctx, name, header, row)
	s.observe("append", start, err)
	return err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
