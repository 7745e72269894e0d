package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/internal/util"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/server"
	"github.com/kevindweb/loadgen/pkg/store"
	pkgutil "github.com/kevindweb/loadgen/pkg/util"
	"github.com/kevindweb/loadgen/pkg/workload"
)

var drivers = []string{store.DriverGoRedis, store.DriverRedigo}

func dial(t *testing.T, driver string) (store.Conn, *server.Server) {
	t.Helper()
	opts, s, err := pkgutil.StartUniqueServer(driver)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Stop()
	})

	opts.OperationTimeout = 200 * time.Millisecond
	dialer, err := store.NewDialer(opts)
	require.NoError(t, err)

	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn, s
}

func TestDriverOperations(t *testing.T) {
	t.Parallel()
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			conn, s := dial(t, driver)
			ctx := context.Background()
			str, zset := uuid.NewString(), uuid.NewString()

			require.NoError(t, conn.Do(ctx, workload.NewSet(str, "value")))
			for i := 0; i < 20; i++ {
				op := workload.NewZAdd(zset, fmt.Sprintf("m:%d", i), float64(i)+0.5)
				require.NoError(t, conn.Do(ctx, op))
			}
			require.NoError(t, conn.Do(ctx, workload.NewZRemRangeByRank(zset, 0, -6)))
			assert.Equal(t, 2, s.Len())

			client := redis.NewClient(&redis.Options{Addr: s.Addr()})
			defer client.Close()
			card, err := client.ZCard(zset).Result()
			require.NoError(t, err)
			assert.Equal(t, int64(5), card)
		})
	}
}

func TestDriverErrorReply(t *testing.T) {
	t.Parallel()
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			conn, s := dial(t, driver)
			s.SetFault(server.Fault{Err: "ERR injected"})

			err := conn.Do(context.Background(), workload.NewSet("k", "v"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "ERR injected")
			assert.False(t, store.Broken(err), "an error reply leaves the connection usable")

			s.ClearFault()
			require.NoError(t, conn.Do(context.Background(), workload.NewSet("k", "v")))
		})
	}
}

func TestDriverDisconnect(t *testing.T) {
	t.Parallel()
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			conn, s := dial(t, driver)
			s.SetFault(server.Fault{Disconnect: true})

			err := conn.Do(context.Background(), workload.NewZAdd("z", "m", 1))
			require.Error(t, err)
			assert.True(t, store.Broken(err), "got %v", err)
		})
	}
}

func TestDriverTimeout(t *testing.T) {
	t.Parallel()
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			conn, s := dial(t, driver)
			s.SetFault(server.Fault{Delay: 400 * time.Millisecond})

			err := conn.Do(context.Background(), workload.NewSet("k", "v"))
			require.Error(t, err)
			assert.ErrorIs(t, err, bencherr.ErrOperationTimeout)
			assert.True(t, store.Broken(err))
		})
	}
}

func TestDialRefused(t *testing.T) {
	t.Parallel()
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			dialer, err := store.NewDialer(store.Options{
				Host:        constants.DefaultHost,
				Port:        util.GetUniquePort(),
				Driver:      driver,
				DialTimeout: 200 * time.Millisecond,
			})
			require.NoError(t, err)

			_, err = dialer.Dial(context.Background())
			require.Error(t, err)
		})
	}
}

func TestDialCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialer, err := store.NewDialer(store.Options{Port: util.GetUniquePort(), Driver: store.DriverRedigo})
	require.NoError(t, err)
	_, err = dialer.Dial(ctx)
	require.Error(t, err)
}
