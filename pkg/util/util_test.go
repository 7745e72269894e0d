package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevindweb/loadgen/pkg/store"
	"github.com/kevindweb/loadgen/pkg/workload"
)

func TestStartUniqueServer(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{store.DriverGoRedis, store.DriverRedigo} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			opts, s, err := StartUniqueServer(driver)
			require.NoError(t, err)
			defer s.Stop()

			dialer, err := store.NewDialer(opts)
			require.NoError(t, err)
			conn, err := dialer.Dial(context.Background())
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.Do(context.Background(), workload.NewSet("k", "v")))
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestSplitAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		host string
		port int
	}{
		{addr: "127.0.0.1:7000", host: "127.0.0.1", port: 7000},
		{addr: "[::1]:7001", host: "::1", port: 7001},
		{addr: "garbage", host: "localhost", port: 6379},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.addr, func(t *testing.T) {
			t.Parallel()
			host, port := splitAddr(tc.addr)
			assert.Equal(t, tc.host, host)
			assert.Equal(t, tc.port, port)
		})
	}
}
