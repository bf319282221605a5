package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/docgate/internal/domain/audit"
)

// AuditService writes access events asynchronously through a buffered
// channel and a background worker, so gate decisions never wait on the
// audit sink.
type AuditService struct {
	store         audit.AuditStore
	auditChan     chan audit.AuditRecord
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	channelSize int
	// sendTimeout of 0 drops immediately when the channel is full.
	sendTimeout time.Duration
	dropCount   atomic.Int64

	warningThreshold int
	lastWarning      atomic.Int64

	// adaptiveFlushThreshold is the channel depth percentage at which
	// the worker flushes four times faster.
	adaptiveFlushThreshold int

	// closeMu guards closed so Record never sends on a closed channel.
	closeMu  sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets the number of records to batch before writing.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithFlushInterval sets the interval to flush pending records.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithChannelSize sets the size of the audit channel buffer.
func WithChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		if size > 0 {
			s.auditChan = make(chan audit.AuditRecord, size)
			s.channelSize = size
		}
	}
}

// WithSendTimeout sets how long Record blocks on a full channel before
// dropping the record.
func WithSendTimeout(timeout time.Duration) AuditOption {
	return func(s *AuditService) {
		s.sendTimeout = timeout
	}
}

// WithWarningThreshold sets the channel depth warning percentage (0-100).
func WithWarningThreshold(percent int) AuditOption {
	return func(s *AuditService) {
		s.warningThreshold = clampPercent(percent)
	}
}

// WithAdaptiveFlushThreshold sets the channel depth percentage that
// triggers faster flushing. 0 disables adaptive flushing.
func WithAdaptiveFlushThreshold(percent int) AuditOption {
	return func(s *AuditService) {
		s.adaptiveFlushThreshold = clampPercent(percent)
	}
}

func clampPercent(p int) int {
	return max(0, min(p, 100))
}

// NewAuditService creates a new AuditService with the given store and options.
func NewAuditService(store audit.AuditStore, logger *slog.Logger, opts ...AuditOption) *AuditService {
	const defaultChannelSize = 1000
	s := &AuditService{
		store:                  store,
		auditChan:              make(chan audit.AuditRecord, defaultChannelSize),
		logger:                 logger,
		batchSize:              100,
		flushInterval:          time.Second,
		channelSize:            defaultChannelSize,
		sendTimeout:            100 * time.Millisecond,
		warningThreshold:       80,
		adaptiveFlushThreshold: 80,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the background worker that batches and writes audit records.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record queues an audit record. A full channel blocks up to the send
// timeout, after which the record is dropped and counted. Records sent
// after Stop are dropped.
func (s *AuditService) Record(record audit.AuditRecord) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		s.recordDrop(record)
		return
	}

	if s.warningThreshold > 0 {
		depth := len(s.auditChan)
		if depth >= s.channelSize*s.warningThreshold/100 {
			s.warnChannelDepth(depth)
		}
	}

	select {
	case s.auditChan <- record:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.recordDrop(record)
		return
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.auditChan <- record:
	case <-timer.C:
		s.recordDrop(record)
	}
}

func (s *AuditService) recordDrop(record audit.AuditRecord) {
	drops := s.dropCount.Add(1)
	s.logger.Warn("audit record dropped",
		"event_type", record.EventType,
		"path", record.Path,
		"total_drops", drops,
	)
}

// warnChannelDepth logs at most once per second.
func (s *AuditService) warnChannelDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("audit channel approaching capacity",
			"depth", depth,
			"capacity", s.channelSize,
			"percent", depth*100/s.channelSize,
		)
	}
}

// DroppedRecords returns total dropped records.
func (s *AuditService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns current channel usage.
func (s *AuditService) ChannelDepth() int {
	return len(s.auditChan)
}

// ChannelCapacity returns channel buffer size.
func (s *AuditService) ChannelCapacity() int {
	return s.channelSize
}

// Stop closes the channel and waits for the worker to flush pending
// records. Safe to call more than once.
func (s *AuditService) Stop() {
	s.stopOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.auditChan)
		s.closeMu.Unlock()
		s.wg.Wait()
	})
}

func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.AuditRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	fastMode := false

	for {
		select {
		case record, ok := <-s.auditChan:
			if !ok {
				s.finalFlush(batch)
				return
			}
			batch = append(batch, record)

			depthPercent := len(s.auditChan) * 100 / s.channelSize
			underPressure := s.adaptiveFlushThreshold > 0 && depthPercent >= s.adaptiveFlushThreshold

			if len(batch) >= s.batchSize || underPressure {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

			if underPressure && !fastMode {
				ticker.Reset(s.flushInterval / 4)
				fastMode = true
				s.logger.Debug("audit adaptive flush: entering fast mode", "depth_percent", depthPercent)
			} else if !underPressure && fastMode {
				ticker.Reset(s.flushInterval)
				fastMode = false
				s.logger.Debug("audit adaptive flush: returning to normal mode", "depth_percent", depthPercent)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain what is already queued; Stop closes the channel later.
			for {
				select {
				case record, ok := <-s.auditChan:
					if !ok {
						s.finalFlush(batch)
						return
					}
					batch = append(batch, record)
				default:
					s.finalFlush(batch)
					s.discardUntilClosed()
					return
				}
			}
		}
	}
}

// discardUntilClosed keeps the channel from filling after the worker's
// context ends, so Record does not block for the send timeout.
func (s *AuditService) discardUntilClosed() {
	for record := range s.auditChan {
		s.recordDrop(record)
	}
}

func (s *AuditService) finalFlush(batch []audit.AuditRecord) {
	if len(batch) == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx, batch)
	if err := s.store.Flush(flushCtx); err != nil {
		s.logger.Error("failed to flush audit store", "error", err)
	}
}

// flush writes a batch of records to the store. Errors are logged but not
// propagated; audit failures never change an access decision.
func (s *AuditService) flush(ctx context.Context, batch []audit.AuditRecord) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write audit batch",
			"error", err,
			"count", len(batch),
		)
	}
}
