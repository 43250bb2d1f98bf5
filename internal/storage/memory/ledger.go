package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// ledgerState holds trades, positions and streaks. Stored values are never
// mutated in place, so a shallow map copy is a consistent snapshot.
type ledgerState struct {
	trades    map[string]*domain.Trade
	positions map[domain.PositionKey]*domain.Position
	users     map[string]*domain.UserStreak
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		trades:    make(map[string]*domain.Trade),
		positions: make(map[domain.PositionKey]*domain.Position),
		users:     make(map[string]*domain.UserStreak),
	}
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		trades:    make(map[string]*domain.Trade, len(s.trades)),
		positions: make(map[domain.PositionKey]*domain.Position, len(s.positions)),
		users:     make(map[string]*domain.UserStreak, len(s.users)),
	}
	for k, v := range s.trades {
		c.trades[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// Ledger is an in-memory implementation of storage.Ledger and of the trade,
// position and user stores. WithinTx serializes transactions and restores
// a snapshot when fn fails.
type Ledger struct {
	mu    sync.Mutex
	state *ledgerState
	now   func() time.Time
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		state: newLedgerState(),
		now:   time.Now,
	}
}

var _ storage.Ledger = (*Ledger)(nil)

// WithinTx runs fn with exclusive access to the ledger.
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.state.clone()
	if err := fn(ledgerView{l: l, inTx: true}); err != nil {
		l.state = snapshot
		return err
	}
	return nil
}

// Trades returns the trade store view outside a transaction.
func (l *Ledger) Trades() storage.TradeStore { return tradeStore{ledgerView{l: l}} }

// Positions returns the position store view outside a transaction.
func (l *Ledger) Positions() storage.PositionStore { return positionStore{ledgerView{l: l}} }

// Users returns the user store view outside a transaction.
func (l *Ledger) Users() storage.UserStore { return userStore{ledgerView{l: l}} }

// ledgerView takes the ledger lock unless it runs inside WithinTx.
type ledgerView struct {
	l    *Ledger
	inTx bool
}

func (v ledgerView) Trades() storage.TradeStore       { return tradeStore{v} }
func (v ledgerView) Positions() storage.PositionStore { return positionStore{v} }
func (v ledgerView) Users() storage.UserStore         { return userStore{v} }

func (v ledgerView) with(fn func(s *ledgerState) error) error {
	if !v.inTx {
		v.l.mu.Lock()
		defer v.l.mu.Unlock()
	}
	return fn(v.l.state)
}

type tradeStore struct{ ledgerView }

func (s tradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}
	return s.with(func(st *ledgerState) error {
		if _, exists := st.trades[t.Signature]; exists {
			return storage.ErrDuplicateKey
		}
		copy := *t
		st.trades[t.Signature] = &copy
		return nil
	})
}

func (s tradeStore) GetBySignature(_ context.Context, signature string) (*domain.Trade, error) {
	var out *domain.Trade
	err := s.with(func(st *ledgerState) error {
		t, ok := st.trades[signature]
		if !ok {
			return storage.ErrNotFound
		}
		copy := *t
		out = &copy
		return nil
	})
	return out, err
}

func (s tradeStore) ExistsBySignature(_ context.Context, signature string) (bool, error) {
	var exists bool
	err := s.with(func(st *ledgerState) error {
		_, exists = st.trades[signature]
		return nil
	})
	return exists, err
}

func (s tradeStore) ListByWallet(_ context.Context, wallet string) ([]*domain.Trade, error) {
	var result []*domain.Trade
	err := s.with(func(st *ledgerState) error {
		for _, t := range st.trades {
			if t.Wallet == wallet {
				copy := *t
				result = append(result, &copy)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Signature < result[j].Signature
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, err
}

func (s tradeStore) FeeTotals(_ context.Context) ([]domain.FeeTotal, error) {
	type groupKey struct{ market, mint string }
	sums := make(map[groupKey]decimal.Decimal)
	err := s.with(func(st *ledgerState) error {
		for _, t := range st.trades {
			k := groupKey{t.MarketID, t.TokenMint}
			sums[k] = sums[k].Add(t.Fee)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]domain.FeeTotal, 0, len(sums))
	for k, total := range sums {
		result = append(result, domain.FeeTotal{MarketID: k.market, TokenMint: k.mint, Total: total})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MarketID == result[j].MarketID {
			return result[i].TokenMint < result[j].TokenMint
		}
		return result[i].MarketID < result[j].MarketID
	})
	return result, nil
}

type positionStore struct{ ledgerView }

func (s positionStore) Get(_ context.Context, key domain.PositionKey) (*domain.Position, error) {
	var out *domain.Position
	err := s.with(func(st *ledgerState) error {
		p, ok := st.positions[key]
		if !ok {
			return storage.ErrNotFound
		}
		copy := *p
		out = &copy
		return nil
	})
	return out, err
}

func (s positionStore) Upsert(_ context.Context, p *domain.Position) error {
	if p == nil || p.Wallet == "" || p.MarketID == "" || p.TokenMint == "" {
		return storage.ErrInvalidInput
	}
	return s.with(func(st *ledgerState) error {
		copy := *p
		copy.ObservedAmount = decimal.Zero
		if existing, ok := st.positions[p.Key()]; ok {
			copy.ObservedAmount = existing.ObservedAmount
		}
		copy.UpdatedAt = s.l.now().UTC()
		st.positions[p.Key()] = &copy
		return nil
	})
}

func (s positionStore) SetObservedAmount(_ context.Context, key domain.PositionKey, amount decimal.Decimal) error {
	if key.Wallet == "" || key.MarketID == "" || key.TokenMint == "" || amount.IsNegative() {
		return storage.ErrInvalidInput
	}
	return s.with(func(st *ledgerState) error {
		var next domain.Position
		if existing, ok := st.positions[key]; ok {
			next = *existing
		} else {
			next = *domain.NewPosition(key)
		}
		next.ObservedAmount = amount
		next.UpdatedAt = s.l.now().UTC()
		st.positions[key] = &next
		return nil
	})
}

func (s positionStore) ListByWallet(_ context.Context, wallet string) ([]*domain.Position, error) {
	var result []*domain.Position
	err := s.with(func(st *ledgerState) error {
		for _, p := range st.positions {
			if p.Wallet == wallet {
				copy := *p
				result = append(result, &copy)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].MarketID == result[j].MarketID {
			return result[i].TokenMint < result[j].TokenMint
		}
		return result[i].MarketID < result[j].MarketID
	})
	return result, err
}

func (s positionStore) RealizedPnlByWallet(_ context.Context) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal)
	err := s.with(func(st *ledgerState) error {
		for _, p := range st.positions {
			result[p.Wallet] = result[p.Wallet].Add(p.RealizedPnl)
		}
		return nil
	})
	return result, err
}

type userStore struct{ ledgerView }

func (s userStore) GetStreak(_ context.Context, wallet string) (*domain.UserStreak, error) {
	var out *domain.UserStreak
	err := s.with(func(st *ledgerState) error {
		u, ok := st.users[wallet]
		if !ok {
			return storage.ErrNotFound
		}
		out = copyStreak(u)
		return nil
	})
	return out, err
}

func (s userStore) UpsertStreak(_ context.Context, u *domain.UserStreak) error {
	if u == nil || u.Wallet == "" {
		return storage.ErrInvalidInput
	}
	return s.with(func(st *ledgerState) error {
		st.users[u.Wallet] = copyStreak(u)
		return nil
	})
}

func (s userStore) ListStreaks(_ context.Context) ([]*domain.UserStreak, error) {
	var result []*domain.UserStreak
	err := s.with(func(st *ledgerState) error {
		for _, u := range st.users {
			result = append(result, copyStreak(u))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Wallet < result[j].Wallet })
	return result, err
}

func copyStreak(u *domain.UserStreak) *domain.UserStreak {
	c := *u
	if u.LastTradeDate != nil {
		d := *u.LastTradeDate
		c.LastTradeDate = &d
	}
	return &c
}

var (
	_ storage.TradeStore    = tradeStore{}
	_ storage.PositionStore = positionStore{}
	_ storage.UserStore     = userStore{}
)
