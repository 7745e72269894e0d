package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/workload"
)

type goRedisDialer struct {
	opts Options
}

// Dial opens a single-connection go-redis client and checks it with PING.
// Retries are left to the caller so every attempt is visible to the pool.
func (d *goRedisDialer) Dial(ctx context.Context) (Conn, error) {
	client := redis.NewClient(&redis.Options{
		Network:      d.opts.Network,
		Addr:         d.opts.Addr(),
		Password:     d.opts.Password,
		DB:           d.opts.DB,
		DialTimeout:  d.opts.DialTimeout,
		ReadTimeout:  d.opts.OperationTimeout,
		WriteTimeout: d.opts.OperationTimeout,
		PoolSize:     1,
		MaxRetries:   0,
	})

	dialCtx, cancel := withTimeout(ctx, d.opts.DialTimeout)
	defer cancel()

	if err := client.WithContext(dialCtx).Ping().Err(); err != nil {
		_ = client.Close()
		return nil, dialError(d.opts, err)
	}

	return &goRedisConn{client: client, timeout: d.opts.OperationTimeout}, nil
}

type goRedisConn struct {
	client  *redis.Client
	timeout time.Duration
}

func (c *goRedisConn) Do(ctx context.Context, op workload.Operation) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	client := c.client.WithContext(ctx)
	var err error
	switch op.Kind {
	case workload.KindSet:
		err = client.Set(op.Key, op.Value, 0).Err()
	case workload.KindZAdd:
		err = client.ZAdd(op.Key, redis.Z{Score: op.Score, Member: op.Member}).Err()
	case workload.KindZRemRangeByRank:
		err = client.ZRemRangeByRank(op.Key, op.Start, op.Stop).Err()
	default:
		return fmt.Errorf(constants.UndefinedOpErr, op.Kind)
	}

	return classify(ctx, err)
}

func (c *goRedisConn) Close() error {
	return c.client.Close()
}
