package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/docgate/internal/domain/audit"
)

// mockSlowAuditStore simulates a slow sink for backpressure tests.
type mockSlowAuditStore struct {
	delay time.Duration
}

func (m *mockSlowAuditStore) Append(context.Context, ...audit.AuditRecord) error {
	time.Sleep(m.delay)
	return nil
}

func (m *mockSlowAuditStore) Flush(context.Context) error { return nil }
func (m *mockSlowAuditStore) Close() error                { return nil }

// recordingAuditStore keeps every appended record.
type recordingAuditStore struct {
	mu      sync.Mutex
	records []audit.AuditRecord
	appends int
	flushes int
}

func (m *recordingAuditStore) Append(_ context.Context, records ...audit.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	m.appends++
	return nil
}

func (m *recordingAuditStore) Flush(context.Context) error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

func (m *recordingAuditStore) Close() error { return nil }

func (m *recordingAuditStore) snapshot() ([]audit.AuditRecord, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.AuditRecord(nil), m.records...), m.appends
}

func gateRecord(i int) audit.AuditRecord {
	return audit.AuditRecord{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTypeGate,
		Path:      fmt.Sprintf("/reference/page-%d", i),
		Decision:  audit.DecisionAllow,
		Outcome:   "ALLOW",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditService_StopFlushesPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &recordingAuditStore{}
	svc := NewAuditService(store, discardLogger(),
		WithBatchSize(100),
		WithFlushInterval(time.Hour),
	)
	svc.Start(context.Background())

	for i := 0; i < 7; i++ {
		svc.Record(gateRecord(i))
	}
	svc.Stop()

	records, _ := store.snapshot()
	if len(records) != 7 {
		t.Fatalf("flushed %d records, want 7", len(records))
	}
	if records[0].Path != "/reference/page-0" || records[6].Path != "/reference/page-6" {
		t.Errorf("records out of order: first=%q last=%q", records[0].Path, records[6].Path)
	}
	if store.flushes == 0 {
		t.Error("store Flush not called on shutdown")
	}
}

func TestAuditService_BatchSizeTriggersWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &recordingAuditStore{}
	svc := NewAuditService(store, discardLogger(),
		WithBatchSize(3),
		WithFlushInterval(time.Hour),
		WithAdaptiveFlushThreshold(0),
	)
	svc.Start(context.Background())
	defer svc.Stop()

	for i := 0; i < 3; i++ {
		svc.Record(gateRecord(i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if records, _ := store.snapshot(); len(records) == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("full batch was not written before the flush interval")
}

func TestAuditService_FlushInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &recordingAuditStore{}
	svc := NewAuditService(store, discardLogger(),
		WithBatchSize(100),
		WithFlushInterval(20*time.Millisecond),
	)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(gateRecord(1))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if records, _ := store.snapshot(); len(records) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("partial batch was not written on the flush interval")
}

func TestAuditService_OverflowWithTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewAuditService(&mockSlowAuditStore{delay: 50 * time.Millisecond}, discardLogger(),
		WithChannelSize(2),
		WithSendTimeout(10*time.Millisecond),
		WithBatchSize(1),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	for i := 0; i < 10; i++ {
		svc.Record(gateRecord(i))
	}

	if svc.DroppedRecords() == 0 {
		t.Error("expected drops when the channel stays full past the send timeout")
	}
	if svc.ChannelCapacity() != 2 {
		t.Errorf("ChannelCapacity() = %d, want 2", svc.ChannelCapacity())
	}

	cancel()
	svc.Stop()
}

func TestAuditService_ChannelDepthWarning(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	svc := NewAuditService(&mockSlowAuditStore{}, logger,
		WithChannelSize(10),
		WithWarningThreshold(80),
		WithSendTimeout(0),
	)

	// Worker not started: fill to 90%.
	for i := 0; i < 9; i++ {
		svc.auditChan <- gateRecord(i)
	}
	svc.Record(gateRecord(9))

	if !strings.Contains(logBuf.String(), "approaching capacity") {
		t.Errorf("expected capacity warning, got: %s", logBuf.String())
	}
}

func TestAuditService_DropCounterAccuracy(t *testing.T) {
	svc := NewAuditService(&mockSlowAuditStore{}, discardLogger(),
		WithChannelSize(5),
		WithSendTimeout(0),
	)

	for i := 0; i < 5; i++ {
		svc.auditChan <- gateRecord(i)
	}
	if svc.ChannelDepth() != 5 {
		t.Fatalf("ChannelDepth() = %d, want 5", svc.ChannelDepth())
	}

	const expectedDrops = 10
	for i := 0; i < expectedDrops; i++ {
		svc.Record(gateRecord(i))
	}
	if got := svc.DroppedRecords(); got != expectedDrops {
		t.Errorf("DroppedRecords() = %d, want %d", got, expectedDrops)
	}
}

func TestAuditService_AdaptiveFlushUnderPressure(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &recordingAuditStore{}
	svc := NewAuditService(store, discardLogger(),
		WithChannelSize(10),
		WithBatchSize(5),
		WithFlushInterval(time.Hour),
		WithAdaptiveFlushThreshold(50),
		WithSendTimeout(100*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	for i := 0; i < 8; i++ {
		svc.Record(gateRecord(i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, appends := store.snapshot(); appends > 0 {
			cancel()
			svc.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	svc.Stop()
	t.Error("expected a flush under pressure well before the hour-long interval")
}

func TestAuditService_RecordAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewAuditService(&recordingAuditStore{}, discardLogger())
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()

	svc.Record(gateRecord(1))
	if svc.DroppedRecords() != 1 {
		t.Errorf("DroppedRecords() = %d, want 1 for a record after Stop", svc.DroppedRecords())
	}
}

func TestAuditService_ContextCancelDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &recordingAuditStore{}
	svc := NewAuditService(store, discardLogger(),
		WithBatchSize(100),
		WithFlushInterval(time.Hour),
	)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	for i := 0; i < 4; i++ {
		svc.Record(gateRecord(i))
	}
	cancel()
	svc.Stop()

	if records, _ := store.snapshot(); len(records) != 4 {
		t.Errorf("flushed %d records after cancel, want 4", len(records))
	}
}
