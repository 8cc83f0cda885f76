// Package lock provides the per-user exclusive slot that guards a recommendation cycle.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"job-recommender/internal/logger"
	"job-recommender/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Mode string

const (
	// ModeStrict refuses to start without a reachable store.
	ModeStrict Mode = "strict"
	// ModeBestEffort degrades to a pass-through lock when the store is unreachable at startup.
	ModeBestEffort Mode = "best-effort"
)

var (
	ErrLockTimeout      = errors.New("lock timeout")
	ErrStoreUnavailable = errors.New("lock store unavailable")
)

const (
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	extendScript  = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

type Options struct {
	Lease        time.Duration
	MaxWait      time.Duration
	PollInterval time.Duration
	Renew        bool
}

func (o Options) withDefaults() Options {
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	return o
}

// Locker runs fn while holding the exclusive slot for userID. The slot is released on every exit path.
type Locker interface {
	WithLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error
}

// New probes the store and returns the lock implementation the mode calls for.
func New(ctx context.Context, client redis.Cmdable, mode Mode, opts Options, log logger.Logger) (Locker, error) {
	log = logger.OrNop(log)

	var err error
	if client == nil {
		err = errors.New("nil redis client")
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
	}

	if err != nil {
		if mode == ModeBestEffort {
			log.Warn("lock store unreachable, locking disabled (best-effort mode)", map[string]interface{}{"err": err})
			return NewPassThrough(log), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return NewRedisLock(client, opts, log), nil
}

func Key(userID int64) string {
	return fmt.Sprintf("recommendation:lock:user:%d", userID)
}

type RedisLock struct {
	client redis.Cmdable
	opts   Options
	log    logger.Logger

	valueFn func() string
}

func NewRedisLock(client redis.Cmdable, opts Options, log logger.Logger) *RedisLock {
	return &RedisLock{
		client: client,
		opts:   opts.withDefaults(),
		log:    logger.OrNop(log),
		valueFn: func() string {
			return fmt.Sprintf("%d:%s", time.Now().UnixMilli(), uuid.NewString())
		},
	}
}

func (l *RedisLock) WithLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(relCtx); err != nil {
			l.log.Warn("lock release failed", map[string]interface{}{"key": lease.key, "err": err})
		}
	}()

	return fn(ctx)
}

// Acquire polls SET NX PX until it succeeds or MaxWait elapses.
func (l *RedisLock) Acquire(ctx context.Context, userID int64) (*Lease, error) {
	key := Key(userID)
	value := l.valueFn()
	deadline := time.Now().Add(l.opts.MaxWait)

	for {
		ok, err := l.client.SetNX(ctx, key, value, l.opts.Lease).Result()
		if err != nil {
			metrics.LockAcquire.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			metrics.LockAcquire.WithLabelValues("acquired").Inc()
			lease := &Lease{key: key, value: value, lock: l}
			if l.opts.Renew {
				lease.startHeartbeat()
			}
			return lease, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			metrics.LockAcquire.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w: %s not acquired within %s", ErrLockTimeout, key, l.opts.MaxWait)
		}
		wait := l.opts.PollInterval
		if wait > remaining {
			wait = remaining
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	key   string
	value string
	lock  *RedisLock

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	lost     atomic.Bool
}

func (le *Lease) Key() string { return le.key }

// Lost reports whether a heartbeat found the key owned by someone else.
func (le *Lease) Lost() bool { return le.lost.Load() }

func (le *Lease) Release(ctx context.Context) error {
	le.stopHeartbeat()

	n, err := le.lock.client.Eval(ctx, releaseScript, []string{le.key}, le.value).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", le.key, err)
	}
	if n == 0 {
		le.lock.log.Warn("lock already expired or taken over at release", map[string]interface{}{"key": le.key})
	}
	return nil
}

func (le *Lease) extend(ctx context.Context) (bool, error) {
	ms := le.lock.opts.Lease.Milliseconds()
	n, err := le.lock.client.Eval(ctx, extendScript, []string{le.key}, le.value, ms).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (le *Lease) startHeartbeat() {
	le.stop = make(chan struct{})
	le.stopped = make(chan struct{})

	interval := le.lock.opts.Lease / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(le.stopped)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-le.stop:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				ok, err := le.extend(ctx)
				cancel()
				if err != nil {
					le.lock.log.Warn("lock renewal failed", map[string]interface{}{"key": le.key, "err": err})
					continue
				}
				if !ok {
					le.lost.Store(true)
					le.lock.log.Error("lock lost before release", map[string]interface{}{"key": le.key})
					return
				}
			}
		}
	}()
}

func (le *Lease) stopHeartbeat() {
	if le.stop == nil {
		return
	}
	le.stopOnce.Do(func() {
		close(le.stop)
		<-le.stopped
	})
}

// PassThrough grants every acquisition immediately. Only produced by best-effort mode.
type PassThrough struct {
	log logger.Logger
}

func NewPassThrough(log logger.Logger) *PassThrough {
	return &PassThrough{log: logger.OrNop(log)}
}

func (p *PassThrough) WithLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	metrics.LockAcquire.WithLabelValues("bypassed").Inc()
	p.log.Debug("lock bypassed", map[string]interface{}{"user_id": userID})
	return fn(ctx)
}

var (
	_ Locker = (*RedisLock)(nil)
	_ Locker = (*PassThrough)(nil)
)
