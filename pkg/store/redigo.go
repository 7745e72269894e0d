package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/internal/util"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/workload"
)

type redigoDialer struct {
	opts Options
}

func (d *redigoDialer) Dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := withTimeout(ctx, d.opts.DialTimeout)
	defer cancel()

	options := []redis.DialOption{
		redis.DialConnectTimeout(d.opts.DialTimeout),
		redis.DialReadTimeout(d.opts.OperationTimeout),
		redis.DialWriteTimeout(d.opts.OperationTimeout),
		redis.DialDatabase(d.opts.DB),
	}
	if d.opts.Password != "" {
		options = append(options, redis.DialPassword(d.opts.Password))
	}

	conn, err := redis.DialContext(dialCtx, d.opts.Network, d.opts.Addr(), options...)
	if err != nil {
		return nil, dialError(d.opts, err)
	}

	if _, err := redis.DoContext(conn, dialCtx, "PING"); err != nil {
		_ = conn.Close()
		return nil, dialError(d.opts, err)
	}

	return &redigoConn{conn: conn, timeout: d.opts.OperationTimeout}, nil
}

type redigoConn struct {
	conn    redis.Conn
	timeout time.Duration
}

func (c *redigoConn) Do(ctx context.Context, op workload.Operation) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	switch op.Kind {
	case workload.KindSet:
		_, err = redis.String(redis.DoContext(c.conn, ctx, "SET", op.Key, op.Value))
	case workload.KindZAdd:
		_, err = redis.Int64(redis.DoContext(c.conn, ctx, "ZADD", op.Key, op.Score, op.Member))
	case workload.KindZRemRangeByRank:
		_, err = redis.Int64(redis.DoContext(c.conn, ctx, "ZREMRANGEBYRANK", op.Key, op.Start, op.Stop))
	default:
		return fmt.Errorf(constants.UndefinedOpErr, op.Kind)
	}

	if err == nil {
		return nil
	}

	var reply redis.Error
	if errors.As(err, &reply) {
		return err
	}

	if c.conn.Err() != nil && !util.IsTimeout(err) {
		return fmt.Errorf("%w: %v", bencherr.ErrConnectionLost, err)
	}

	return classify(ctx, err)
}

func (c *redigoConn) Close() error {
	return c.conn.Close()
}
