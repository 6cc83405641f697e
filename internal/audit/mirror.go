// Package audit forwards change records to operational destinations outside
// the record store. The Audit_Log table is the durable record; mirrors are
// best-effort copies for teams that want edits in their own tooling (a SIEM,
// a shared log file, a chat webhook) without polling the store. Mirror
// failures are logged and counted but never surfaced to the save path — an
// unreachable webhook must not block a stakeholder's edit.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/safego"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
)

// Mirror is a single forwarding destination for change records.
type Mirror interface {
	// Ship forwards one change record to the destination.
	Ship(ctx context.Context, rec plan.ChangeRecord) error
	// Close flushes buffered records and releases resources.
	Close() error
}

// MultiMirror fans records out to every enabled destination.
type MultiMirror struct {
	mu      sync.RWMutex
	mirrors []namedMirror
}

type namedMirror struct {
	kind string
	Mirror
}

// NewMultiMirror builds the configured destinations. Disabled entries are
// skipped; a MultiMirror with no destinations is valid and ships nothing.
func NewMultiMirror(configs []config.AuditMirrorConfig) (*MultiMirror, error) {
	mm := &MultiMirror{}

	for i, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var (
			m   Mirror
			err error
		)
		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("audit mirror %d: webhook configuration is required", i)
			}
			m, err = NewWebhookMirror(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("audit mirror %d: file configuration is required", i)
			}
			m, err = NewFileMirror(cfg.File)
		default:
			return nil, fmt.Errorf("audit mirror %d: unknown type %q", i, cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("audit mirror %d (%s): %w", i, cfg.Type, err)
		}

		mm.mirrors = append(mm.mirrors, namedMirror{kind: cfg.Type, Mirror: m})
	}

	return mm, nil
}

// Enabled reports whether at least one destination is configured.
func (mm *MultiMirror) Enabled() bool {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.mirrors) > 0
}

// Ship forwards the record to every destination. Per-destination failures
// are logged and counted; the returned error is always nil so callers on the
// save path never have to reason about mirror health.
func (mm *MultiMirror) Ship(ctx context.Context, rec plan.ChangeRecord) error {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	for _, m := range mm.mirrors {
		if err := m.Ship(ctx, rec); err != nil {
			telemetry.AuditMirrorFailuresTotal.WithLabelValues(m.kind).Inc()
			slog.Warn("audit mirror rejected entry",
				"destination", m.kind,
				"activity", rec.Label,
				"error", err)
		}
	}
	return nil
}

// ShipAll forwards a batch of records, typically the entries of one save.
func (mm *MultiMirror) ShipAll(ctx context.Context, recs []plan.ChangeRecord) {
	for _, rec := range recs {
		_ = mm.Ship(ctx, rec)
	}
}

// Close closes every destination, returning the last error seen.
func (mm *MultiMirror) Close() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	var lastErr error
	for _, m := range mm.mirrors {
		if err := m.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookMirror POSTs change records as JSON to an HTTP endpoint. With
// batching enabled, records are buffered and flushed as a JSON array when the
// batch fills or the flush interval elapses; otherwise each record is sent
// on its own request.
type WebhookMirror struct {
	cfg       *config.AuditWebhookConfig
	client    *http.Client
	timeout   time.Duration
	batchCh   chan plan.ChangeRecord
	batch     []plan.ChangeRecord
	batchMu   sync.Mutex
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewWebhookMirror creates a webhook mirror and, when batching is enabled,
// starts its flush goroutine.
func NewWebhookMirror(cfg *config.AuditWebhookConfig) (*WebhookMirror, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	wm := &WebhookMirror{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		batchCh: make(chan plan.ChangeRecord, 256),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		safego.Go(wm.processBatches)
	} else {
		close(wm.doneCh)
	}

	return wm, nil
}

func (wm *WebhookMirror) processBatches() {
	defer close(wm.doneCh)

	flushInterval := time.Duration(wm.cfg.FlushInterval) * time.Second
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-wm.batchCh:
			wm.batchMu.Lock()
			wm.batch = append(wm.batch, rec)
			if len(wm.batch) >= wm.cfg.BatchSize {
				wm.flushBatch()
			}
			wm.batchMu.Unlock()
		case <-ticker.C:
			wm.batchMu.Lock()
			wm.flushBatch()
			wm.batchMu.Unlock()
		case <-wm.closeCh:
			// Drain anything queued but not yet picked up, then flush.
			wm.batchMu.Lock()
			for {
				select {
				case rec := <-wm.batchCh:
					wm.batch = append(wm.batch, rec)
					continue
				default:
				}
				break
			}
			wm.flushBatch()
			wm.batchMu.Unlock()
			return
		}
	}
}

// flushBatch sends the buffered records as one JSON array. Callers must hold
// batchMu.
func (wm *WebhookMirror) flushBatch() {
	if len(wm.batch) == 0 {
		return
	}

	n := len(wm.batch)
	data, err := json.Marshal(wm.batch)
	wm.batch = wm.batch[:0]
	if err != nil {
		telemetry.AuditMirrorFailuresTotal.WithLabelValues("webhook").Add(float64(n))
		slog.Warn("audit webhook mirror could not encode batch", "entries", n, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wm.timeout)
	defer cancel()

	if err := wm.send(ctx, data); err != nil {
		telemetry.AuditMirrorFailuresTotal.WithLabelValues("webhook").Add(float64(n))
		slog.Warn("audit webhook mirror batch delivery failed", "entries", n, "error", err)
	}
}

// Ship queues the record when batching is enabled, sending directly if the
// queue is full, and otherwise POSTs it immediately.
func (wm *WebhookMirror) Ship(ctx context.Context, rec plan.ChangeRecord) error {
	if wm.cfg.BatchSize > 0 {
		select {
		case wm.batchCh <- rec:
			return nil
		default:
			// Queue full, fall through to a direct send.
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode change record: %w", err)
	}
	return wm.send(ctx, data)
}

func (wm *WebhookMirror) send(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wm.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range wm.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the flush goroutine after a final flush of buffered records.
func (wm *WebhookMirror) Close() error {
	wm.closeOnce.Do(func() {
		close(wm.closeCh)
	})
	<-wm.doneCh
	wm.client.CloseIdleConnections()
	return nil
}

// FileMirror appends change records as JSON lines to a local file, rotating
// by size. One line per record keeps the file greppable by activity name or
// user email.
type FileMirror struct {
	cfg  *config.AuditFileConfig
	mu   sync.Mutex
	file *os.File
}

// NewFileMirror opens (or creates) the mirror file in append mode.
func NewFileMirror(cfg *config.AuditFileConfig) (*FileMirror, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit mirror file: %w", err)
	}
	return &FileMirror{cfg: cfg, file: file}, nil
}

// Ship writes one JSON line. When the file exceeds the configured size the
// current file is rotated to .1 and older backups shift up.
func (fm *FileMirror) Ship(_ context.Context, rec plan.ChangeRecord) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.cfg.MaxSizeMB > 0 {
		info, err := fm.file.Stat()
		if err == nil && info.Size() > int64(fm.cfg.MaxSizeMB)*1024*1024 {
			if err := fm.rotate(); err != nil {
				slog.Warn("audit file mirror rotation failed", "path", fm.cfg.Path, "error", err)
			}
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode change record: %w", err)
	}
	if _, err := fm.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write change record: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1, and opens
// a fresh file. Callers must hold mu.
func (fm *FileMirror) rotate() error {
	if err := fm.file.Close(); err != nil {
		return err
	}

	for i := fm.cfg.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(
			fmt.Sprintf("%s.%d", fm.cfg.Path, i),
			fmt.Sprintf("%s.%d", fm.cfg.Path, i+1),
		)
	}
	_ = os.Rename(fm.cfg.Path, fm.cfg.Path+".1")
	if fm.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fm.cfg.Path, fm.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fm.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fm.file = file
	return nil
}

// Close closes the mirror file.
func (fm *FileMirror) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.file.Close()
}
