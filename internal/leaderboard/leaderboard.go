// Package leaderboard publishes wallet rankings to Redis sorted sets.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"market-ledger/internal/storage"
)

// DefaultInterval is how often rankings are recomputed.
const DefaultInterval = 10 * time.Minute

// Board names.
const (
	BoardPnl    = "pnl"
	BoardStreak = "streak"
)

// Entry is one ranked wallet.
type Entry struct {
	Wallet string
	Score  float64
}

// Publisher recomputes rankings from the ledger.
type Publisher struct {
	client    redis.UniversalClient
	prefix    string
	positions storage.PositionStore
	users     storage.UserStore
	logger    *zap.Logger
}

// Options contains configuration for creating a Publisher.
type Options struct {
	Client    redis.UniversalClient
	Prefix    string // Default: "ledger"
	Positions storage.PositionStore
	Users     storage.UserStore
	Logger    *zap.Logger
}

// New creates a new Publisher.
func New(opts Options) *Publisher {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ledger"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:    opts.Client,
		prefix:    prefix,
		positions: opts.Positions,
		users:     opts.Users,
		logger:    logger.Named("leaderboard"),
	}
}

// Key returns the Redis key of a board.
func (p *Publisher) Key(board string) string {
	return fmt.Sprintf("%s:leaderboard:%s", p.prefix, board)
}

// Recompute rebuilds both boards.
func (p *Publisher) Recompute(ctx context.Context) error {
	pnl, err := p.positions.RealizedPnlByWallet(ctx)
	if err != nil {
		return fmt.Errorf("sum realized pnl: %w", err)
	}
	pnlMembers := make([]redis.Z, 0, len(pnl))
	for wallet, v := range pnl {
		pnlMembers = append(pnlMembers, redis.Z{Member: wallet, Score: v.InexactFloat64()})
	}

	streaks, err := p.users.ListStreaks(ctx)
	if err != nil {
		return fmt.Errorf("list streaks: %w", err)
	}
	streakMembers := make([]redis.Z, 0, len(streaks))
	for _, s := range streaks {
		streakMembers = append(streakMembers, redis.Z{Member: s.Wallet, Score: float64(s.CurrentStreak)})
	}

	if err := p.replace(ctx, BoardPnl, pnlMembers); err != nil {
		return err
	}
	if err := p.replace(ctx, BoardStreak, streakMembers); err != nil {
		return err
	}

	p.logger.Debug("leaderboards recomputed",
		zap.Int("pnl_wallets", len(pnlMembers)),
		zap.Int("streak_wallets", len(streakMembers)))
	return nil
}

// replace swaps a board's contents atomically via a temporary key.
func (p *Publisher) replace(ctx context.Context, board string, members []redis.Z) error {
	key := p.Key(board)
	tmp := key + ":tmp"

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tmp)
		if len(members) == 0 {
			pipe.Del(ctx, key)
			return nil
		}
		pipe.ZAdd(ctx, tmp, members...)
		pipe.Rename(ctx, tmp, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// Top returns the n highest-ranked wallets of a board.
func (p *Publisher) Top(ctx context.Context, board string, n int64) ([]Entry, error) {
	zs, err := p.client.ZRevRangeWithScores(ctx, p.Key(board), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", board, err)
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		wallet, _ := z.Member.(string)
		out = append(out, Entry{Wallet: wallet, Score: z.Score})
	}
	return out, nil
}
