package util

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTimeout(t *testing.T) {
	t.Parallel()
	_, err := net.DialTimeout("tcp", "10.255.255.1:80", time.Nanosecond)
	require.Error(t, err)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "dial timeout", err: err, want: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsTimeout(tc.err))
		})
	}
}

func TestGetUniquePort(t *testing.T) {
	t.Parallel()
	port := GetUniquePort()
	assert.Positive(t, port)

	l, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
