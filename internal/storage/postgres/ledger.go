package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// Ledger implements storage.Ledger over trades, positions and users.
// Outside WithinTx its stores run each statement on the pool.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

var _ storage.Ledger = (*Ledger)(nil)

// WithinTx runs fn in a READ COMMITTED transaction and commits when fn returns nil.
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ledgerTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Trades returns the trade store.
func (l *Ledger) Trades() storage.TradeStore { return TradeStore{q: l.pool} }

// Positions returns the position store.
func (l *Ledger) Positions() storage.PositionStore { return PositionStore{q: l.pool} }

// Users returns the user store.
func (l *Ledger) Users() storage.UserStore { return UserStore{q: l.pool} }

type ledgerTx struct {
	q querier
}

func (t ledgerTx) Trades() storage.TradeStore       { return TradeStore{q: t.q} }
func (t ledgerTx) Positions() storage.PositionStore { return PositionStore{q: t.q} }
func (t ledgerTx) Users() storage.UserStore         { return UserStore{q: t.q} }

// TradeStore implements storage.TradeStore.
type TradeStore struct {
	q querier
}

var _ storage.TradeStore = TradeStore{}

const tradeColumns = `id::TEXT, wallet, market_id, token_mint, side, price::TEXT, amount::TEXT, fee::TEXT, signature, ts`

// Insert adds a trade. Returns ErrDuplicateKey if the signature exists.
func (s TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil {
		return storage.ErrInvalidInput
	}
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return fmt.Errorf("%w: trade id: %v", storage.ErrInvalidInput, err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO trades (id, signature, wallet, market_id, token_mint, side, price, amount, fee, ts)
		VALUES ($1::UUID, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)
	`,
		id.String(), t.Signature, t.Wallet, t.MarketID, t.TokenMint, string(t.Side),
		t.Price.String(), t.Amount.String(), t.Fee.String(), t.Timestamp.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetBySignature retrieves a trade by signature.
func (s TradeStore) GetBySignature(ctx context.Context, signature string) (*domain.Trade, error) {
	row := s.q.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE signature = $1`, signature)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade: %w", err)
	}
	return t, nil
}

// ExistsBySignature reports whether the signature is recorded.
func (s TradeStore) ExistsBySignature(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trades WHERE signature = $1)`, signature).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check trade: %w", err)
	}
	return exists, nil
}

// ListByWallet retrieves a wallet's trades ordered by timestamp ASC.
func (s TradeStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.Trade, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE wallet = $1
		ORDER BY ts ASC, signature ASC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var result []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// FeeTotals sums fees per (market, mint).
func (s TradeStore) FeeTotals(ctx context.Context) ([]domain.FeeTotal, error) {
	rows, err := s.q.Query(ctx, `
		SELECT market_id, token_mint, SUM(fee)::TEXT
		FROM trades
		GROUP BY market_id, token_mint
		ORDER BY market_id, token_mint
	`)
	if err != nil {
		return nil, fmt.Errorf("sum fees: %w", err)
	}
	defer rows.Close()

	var result []domain.FeeTotal
	for rows.Next() {
		var (
			ft    domain.FeeTotal
			total string
		)
		if err := rows.Scan(&ft.MarketID, &ft.TokenMint, &total); err != nil {
			return nil, fmt.Errorf("scan fee total: %w", err)
		}
		if ft.Total, err = parseDecimal("fee total", total); err != nil {
			return nil, err
		}
		result = append(result, ft)
	}
	return result, rows.Err()
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var (
		t                  domain.Trade
		side               string
		price, amount, fee string
		ts                 time.Time
	)
	if err := row.Scan(&t.ID, &t.Wallet, &t.MarketID, &t.TokenMint, &side, &price, &amount, &fee, &t.Signature, &ts); err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.Timestamp = ts.UTC()

	var err error
	if t.Price, err = parseDecimal("price", price); err != nil {
		return nil, err
	}
	if t.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	if t.Fee, err = parseDecimal("fee", fee); err != nil {
		return nil, err
	}
	return &t, nil
}

// PositionStore implements storage.PositionStore.
type PositionStore struct {
	q querier
}

var _ storage.PositionStore = PositionStore{}

const positionColumns = `wallet, market_id, token_mint, amount::TEXT, average_entry_price::TEXT, realized_pnl::TEXT, observed_amount::TEXT, updated_at`

// Get retrieves a position.
func (s PositionStore) Get(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE wallet = $1 AND market_id = $2 AND token_mint = $3
	`, key.Wallet, key.MarketID, key.TokenMint)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// Upsert writes the trade-ledger lot of a position. observed_amount is left alone.
func (s PositionStore) Upsert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Wallet == "" || p.MarketID == "" || p.TokenMint == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO positions (wallet, market_id, token_mint, amount, average_entry_price, realized_pnl, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, NOW())
		ON CONFLICT (wallet, market_id, token_mint) DO UPDATE
		SET amount = EXCLUDED.amount,
		    average_entry_price = EXCLUDED.average_entry_price,
		    realized_pnl = EXCLUDED.realized_pnl,
		    updated_at = NOW()
	`, p.Wallet, p.MarketID, p.TokenMint,
		p.Amount.String(), p.AverageEntryPrice.String(), p.RealizedPnl.String())
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// SetObservedAmount overwrites observed_amount only, creating an empty lot if absent.
func (s PositionStore) SetObservedAmount(ctx context.Context, key domain.PositionKey, amount decimal.Decimal) error {
	if key.Wallet == "" || key.MarketID == "" || key.TokenMint == "" || amount.IsNegative() {
		return storage.ErrInvalidInput
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO positions (wallet, market_id, token_mint, observed_amount, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC, NOW())
		ON CONFLICT (wallet, market_id, token_mint) DO UPDATE
		SET observed_amount = EXCLUDED.observed_amount,
		    updated_at = NOW()
	`, key.Wallet, key.MarketID, key.TokenMint, amount.String())
	if err != nil {
		return fmt.Errorf("set observed amount: %w", err)
	}
	return nil
}

// ListByWallet retrieves a wallet's positions ordered by market and mint.
func (s PositionStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.Position, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE wallet = $1
		ORDER BY market_id, token_mint
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// RealizedPnlByWallet sums realized PnL per wallet.
func (s PositionStore) RealizedPnlByWallet(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.q.Query(ctx, `
		SELECT wallet, SUM(realized_pnl)::TEXT
		FROM positions
		GROUP BY wallet
	`)
	if err != nil {
		return nil, fmt.Errorf("sum realized pnl: %w", err)
	}
	defer rows.Close()

	result := make(map[string]decimal.Decimal)
	for rows.Next() {
		var wallet, total string
		if err := rows.Scan(&wallet, &total); err != nil {
			return nil, fmt.Errorf("scan pnl: %w", err)
		}
		d, err := parseDecimal("realized pnl", total)
		if err != nil {
			return nil, err
		}
		result[wallet] = d
	}
	return result, rows.Err()
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                          domain.Position
		amount, avg, pnl, observed string
	)
	if err := row.Scan(&p.Wallet, &p.MarketID, &p.TokenMint, &amount, &avg, &pnl, &observed, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	if p.AverageEntryPrice, err = parseDecimal("average_entry_price", avg); err != nil {
		return nil, err
	}
	if p.RealizedPnl, err = parseDecimal("realized_pnl", pnl); err != nil {
		return nil, err
	}
	if p.ObservedAmount, err = parseDecimal("observed_amount", observed); err != nil {
		return nil, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// UserStore implements storage.UserStore.
type UserStore struct {
	q querier
}

var _ storage.UserStore = UserStore{}

// GetStreak retrieves a wallet's streak.
func (s UserStore) GetStreak(ctx context.Context, wallet string) (*domain.UserStreak, error) {
	row := s.q.QueryRow(ctx, `
		SELECT wallet, last_trade_date, current_streak, highest_streak
		FROM users
		WHERE wallet = $1
	`, wallet)
	u, err := scanStreak(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return u, nil
}

// UpsertStreak writes a wallet's streak.
func (s UserStore) UpsertStreak(ctx context.Context, u *domain.UserStreak) error {
	if u == nil || u.Wallet == "" {
		return storage.ErrInvalidInput
	}
	var last *time.Time
	if u.LastTradeDate != nil {
		d := u.LastTradeDate.UTC()
		last = &d
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO users (wallet, last_trade_date, current_streak, highest_streak)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet) DO UPDATE
		SET last_trade_date = EXCLUDED.last_trade_date,
		    current_streak = EXCLUDED.current_streak,
		    highest_streak = EXCLUDED.highest_streak
	`, u.Wallet, last, u.CurrentStreak, u.HighestStreak)
	if err != nil {
		return fmt.Errorf("upsert streak: %w", err)
	}
	return nil
}

// ListStreaks returns every wallet's streak ordered by wallet.
func (s UserStore) ListStreaks(ctx context.Context) ([]*domain.UserStreak, error) {
	rows, err := s.q.Query(ctx, `
		SELECT wallet, last_trade_date, current_streak, highest_streak
		FROM users
		ORDER BY wallet
	`)
	if err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}
	defer rows.Close()

	var result []*domain.UserStreak
	for rows.Next() {
		u, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func scanStreak(row pgx.Row) (*domain.UserStreak, error) {
	var (
		u    domain.UserStreak
		last *time.Time
	)
	if err := row.Scan(&u.Wallet, &last, &u.CurrentStreak, &u.HighestStreak); err != nil {
		return nil, err
	}
	if last != nil {
		d := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
		u.LastTradeDate = &d
	}
	return &u, nil
}
