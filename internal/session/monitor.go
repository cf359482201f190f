package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OKaluzny/healthchain-wallet/internal/storage"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

const satsPerBSV = 1e8

// DefaultRefreshInterval is how often balances refresh while connected.
const DefaultRefreshInterval = 15 * time.Second

// BalanceSource reads an address balance from the ledger.
type BalanceSource interface {
	Balance(ctx context.Context, address string) (*models.Balance, error)
}

// RateSource reads fiat prices of the coin.
type RateSource interface {
	GetRates(ctx context.Context) (*models.FiatRates, error)
}

// BalanceReader turns ledger balances into BSV and fiat amounts.
type BalanceReader struct {
	ledger BalanceSource
	rates  RateSource
}

func NewBalanceReader(ledger BalanceSource, rates RateSource) *BalanceReader {
	return &BalanceReader{ledger: ledger, rates: rates}
}

// Read fetches each address once. Any failure fails the whole read.
func (r *BalanceReader) Read(ctx context.Context, addrs []string) (map[string]models.AddressBalance, error) {
	rates, err := r.rates.GetRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("fiat rates: %w", err)
	}
	out := make(map[string]models.AddressBalance, len(addrs))
	for _, addr := range addrs {
		if _, ok := out[addr]; ok {
			continue
		}
		bal, err := r.ledger.Balance(ctx, addr)
		if err != nil {
			return nil, err
		}
		sats := bal.Total()
		bsv := float64(sats) / satsPerBSV
		out[addr] = models.AddressBalance{
			Address: addr,
			Sats:    sats,
			BSV:     bsv,
			USD:     bsv * rates.USD,
			EUR:     bsv * rates.EUR,
			GBP:     bsv * rates.GBP,
		}
	}
	return out, nil
}

// BalanceMonitor refreshes the session balances on a ticker while a wallet
// is connected. Watched addresses are refreshed along with the wallet's own.
type BalanceMonitor struct {
	session  *Session
	watch    storage.WatchStore
	interval time.Duration
	events   chan models.BalanceEvent
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewBalanceMonitor(s *Session, ws storage.WatchStore, interval time.Duration) *BalanceMonitor {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &BalanceMonitor{
		session:  s,
		watch:    ws,
		interval: interval,
		events:   make(chan models.BalanceEvent, 16),
		logger:   slog.Default().With("component", "balance_monitor"),
	}
}

// Start runs an initial refresh and then one per interval until Stop.
func (m *BalanceMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return fmt.Errorf("balance monitor stopped")
	}
	if m.cancel != nil {
		return fmt.Errorf("balance monitor already started")
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	m.logger.Info("starting balance monitor", "interval", m.interval)
	go m.pollLoop(ctx)
	return nil
}

// Stop waits for the loop to exit and closes Events. A monitor cannot be
// restarted; later calls to Stop do nothing.
func (m *BalanceMonitor) Stop() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	if cancel == nil || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	cancel()
	<-done
	close(m.events)
	m.logger.Info("balance monitor stopped")
	return nil
}

func (m *BalanceMonitor) WatchAddress(ctx context.Context, address string) error {
	if err := m.watch.Add(ctx, address); err != nil {
		return err
	}
	m.logger.Info("watching address", "address", address)
	return nil
}

// UnwatchAddress returns models.ErrAddressNotWatched for unknown addresses.
func (m *BalanceMonitor) UnwatchAddress(ctx context.Context, address string) error {
	ok, err := m.watch.Contains(ctx, address)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrAddressNotWatched, address)
	}
	if err := m.watch.Remove(ctx, address); err != nil {
		return err
	}
	m.logger.Info("unwatched address", "address", address)
	return nil
}

// Events returns refresh results. Slow readers miss events rather than
// stall the loop.
func (m *BalanceMonitor) Events() <-chan models.BalanceEvent {
	return m.events
}

// Refresh runs one refresh now. It is a no-op while disconnected.
func (m *BalanceMonitor) Refresh(ctx context.Context) models.BalanceEvent {
	if !m.session.Connected() {
		return models.BalanceEvent{}
	}
	watched, err := m.watch.List(ctx)
	if err != nil {
		m.logger.Warn("list watched addresses", "error", err)
	}
	return m.session.RefreshBalances(ctx, watched...)
}

func (m *BalanceMonitor) pollLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *BalanceMonitor) tick(ctx context.Context) {
	if !m.session.Connected() {
		return
	}
	ev := m.Refresh(ctx)
	if ev.Message == "" {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("dropping balance event, no reader")
	}
}
