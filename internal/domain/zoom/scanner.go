package zoom

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scanner defaults.
const (
	DefaultDebounce     = 100 * time.Millisecond
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxAttempts  = 20
	DefaultPollWindow   = 30 * time.Second
)

// ScanFunc discovers and initializes diagrams, returning how many were new.
type ScanFunc func() int

// ScannerConfig tunes a Scanner. Zero values take the defaults.
type ScannerConfig struct {
	Debounce     time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	PollWindow   time.Duration
}

// Scanner runs scans in response to document mutations and, for a bounded
// time after start or navigation, on a polling interval.
//
// Mutations are producers (Notify), the run loop is the single consumer:
// bursts of notifications collapse into one scan after the debounce delay.
type Scanner struct {
	scan   ScanFunc
	cfg    ScannerConfig
	logger *slog.Logger

	notify    chan struct{}
	navigated chan struct{}

	mu       sync.Mutex
	path     string
	scans    int
	attempts int
	polling  bool
}

// NewScanner creates a scanner. Call Run to start it.
func NewScanner(scan ScanFunc, cfg ScannerConfig, logger *slog.Logger) *Scanner {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PollWindow <= 0 {
		cfg.PollWindow = DefaultPollWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		scan:      scan,
		cfg:       cfg,
		logger:    logger,
		notify:    make(chan struct{}, 1),
		navigated: make(chan struct{}, 1),
	}
}

// Notify reports a document mutation. It never blocks.
func (s *Scanner) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Navigated reports the current location path. A change of path restarts
// bounded polling; reporting the same path again does nothing.
func (s *Scanner) Navigated(path string) {
	s.mu.Lock()
	if path == s.path {
		s.mu.Unlock()
		return
	}
	s.path = path
	s.mu.Unlock()

	select {
	case s.navigated <- struct{}{}:
	default:
	}
}

// Run scans until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	debounce := time.NewTimer(s.cfg.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	var (
		ticker   *time.Ticker
		tick     <-chan time.Time
		deadline time.Time
	)
	startPolling := func() {
		if ticker != nil {
			ticker.Stop()
		}
		ticker = time.NewTicker(s.cfg.PollInterval)
		tick = ticker.C
		deadline = time.Now().Add(s.cfg.PollWindow)
		s.mu.Lock()
		s.attempts = 0
		s.polling = true
		s.mu.Unlock()
	}
	stopPolling := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		tick = nil
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
	}
	defer stopPolling()

	s.runScan()
	startPolling()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.notify:
			debounce.Reset(s.cfg.Debounce)

		case <-debounce.C:
			s.runScan()

		case <-s.navigated:
			s.runScan()
			startPolling()

		case now := <-tick:
			s.runScan()
			s.mu.Lock()
			s.attempts++
			done := s.attempts >= s.cfg.MaxAttempts
			s.mu.Unlock()
			if done || !now.Before(deadline) {
				stopPolling()
				s.logger.Debug("diagram polling finished")
			}
		}
	}
}

// Scans returns the number of scans run so far.
func (s *Scanner) Scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

// Polling reports whether bounded polling is active.
func (s *Scanner) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

func (s *Scanner) runScan() {
	n := s.scan()
	s.mu.Lock()
	s.scans++
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug("diagrams initialized", "count", n)
	}
}
