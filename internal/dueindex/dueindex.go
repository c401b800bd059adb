// Package dueindex keeps loan due dates in a Redis sorted set so the sweeper
// can find late loans without scanning the loans table.
package dueindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey   = "loans:due_dates"
	memberPrefix = "loan:"
)

type Index struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client) *Index {
	return &Index{rdb: rdb, key: DefaultKey}
}

// WithKey returns a copy of the index using another sorted set.
func (i *Index) WithKey(key string) *Index {
	return &Index{rdb: i.rdb, key: key}
}

// Connect parses addr (host:port or a redis:// URL) and pings the server.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func member(loanID string) string { return memberPrefix + loanID }

func score(t time.Time) float64 { return float64(t.Unix()) }

// Schedule adds the loan if it is not indexed yet. An existing score is kept.
func (i *Index) Schedule(ctx context.Context, loanID string, due time.Time) error {
	return i.rdb.ZAddNX(ctx, i.key, redis.Z{Score: score(due), Member: member(loanID)}).Err()
}

// Reschedule sets the loan's due date, replacing any existing score.
func (i *Index) Reschedule(ctx context.Context, loanID string, due time.Time) error {
	return i.rdb.ZAdd(ctx, i.key, redis.Z{Score: score(due), Member: member(loanID)}).Err()
}

func (i *Index) Remove(ctx context.Context, loanIDs ...string) error {
	if len(loanIDs) == 0 {
		return nil
	}
	members := make([]any, len(loanIDs))
	for n, id := range loanIDs {
		members[n] = member(id)
	}
	return i.rdb.ZRem(ctx, i.key, members...).Err()
}

// Due returns up to limit loan ids whose due date is strictly before now,
// earliest first.
func (i *Index) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.Unix(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	members, err := i.rdb.ZRangeByScore(ctx, i.key, by).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if id, ok := strings.CutPrefix(m, memberPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type Stats struct {
	Total int64 `json:"total"`
	Due   int64 `json:"due"`
}

func (i *Index) Stats(ctx context.Context, now time.Time) (Stats, error) {
	pipe := i.rdb.Pipeline()
	total := pipe.ZCard(ctx, i.key)
	due := pipe.ZCount(ctx, i.key, "-inf", "("+strconv.FormatInt(now.Unix(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{Total: total.Val(), Due: due.Val()}, nil
}
