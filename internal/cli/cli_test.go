package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevindweb/loadgen/internal/util"
	"github.com/kevindweb/loadgen/pkg/server"
)

type summary struct {
	Planned  int  `json:"planned"`
	Executed int  `json:"executed"`
	Degraded bool `json:"degraded"`
	Kinds    []struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	} `json:"kinds"`
}

func startStore(t *testing.T) (*server.Server, string, string) {
	t.Helper()
	s, err := server.StartOptions(server.Options{Port: util.GetUniquePort()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Stop()
	})

	host, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	return s, host, port
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := ExecuteContext(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decode(t *testing.T, out string) summary {
	t.Helper()
	var s summary
	require.NoError(t, json.Unmarshal([]byte(out), &s), out)
	return s
}

func TestRunJSON(t *testing.T) {
	t.Parallel()
	_, host, port := startStore(t)

	for _, driver := range []string{"goredis", "redigo"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			code, stdout, stderr := execute(t, "run",
				"--host", host, "--port", port, "--driver", driver,
				"-c", "4", "-n", "25", "--mix", "set=0.5,zadd=0.4,zremrangebyrank=0.1",
				"--format", "json", "--log-level", "error", "--no-color",
			)
			require.Equal(t, ExitOK, code, stderr)

			s := decode(t, stdout)
			assert.Equal(t, 100, s.Planned)
			assert.Equal(t, 100, s.Executed)
			assert.False(t, s.Degraded)
		})
	}
}

func TestRunConfigFileWithOverrides(t *testing.T) {
	t.Parallel()
	_, host, port := startStore(t)

	path := filepath.Join(t.TempDir(), "loadgen.yaml")
	content := "store:\n  host: " + host + "\n  port: " + port + "\n" +
		"run:\n  concurrency: 2\n  count: 5\n  mix: zadd=1\n" +
		"output:\n  format: csv\n  log_level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	code, stdout, stderr := execute(t, "run", "--config", path, "-n", "7", "--format", "json")
	require.Equal(t, ExitOK, code, stderr)

	s := decode(t, stdout)
	assert.Equal(t, 14, s.Executed, "flag count overrides the file")
	require.Len(t, s.Kinds, 1)
	assert.Equal(t, "ZADD", s.Kinds[0].Kind, "file mix applies when the flag is unset")
}

func TestRunOutputFile(t *testing.T) {
	t.Parallel()
	_, host, port := startStore(t)
	path := filepath.Join(t.TempDir(), "report.csv")

	code, stdout, stderr := execute(t, "run", "--host", host, "--port", port,
		"-c", "1", "-n", "3", "--format", "csv", "-o", path, "--log-level", "error")
	require.Equal(t, ExitOK, code, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id,kind,count")
}

func TestRunStoreErrorsStillSucceed(t *testing.T) {
	t.Parallel()
	s, host, port := startStore(t)
	s.SetFault(server.Fault{Err: "ERR injected"})

	code, stdout, stderr := execute(t, "run", "--host", host, "--port", port,
		"-c", "2", "-n", "5", "--format", "table", "--no-color", "--log-level", "error")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "100.00%")
	assert.Contains(t, stdout, "command: 10")
}

func TestRunMetricsEndpoint(t *testing.T) {
	t.Parallel()
	_, host, port := startStore(t)

	code, _, stderr := execute(t, "run", "--host", host, "--port", port,
		"-c", "1", "-n", "2", "--metrics-addr", "localhost:0", "--format", "json", "--log-level", "info")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stderr, "serving metrics")
}

func TestExitCodes(t *testing.T) {
	t.Parallel()
	unused := strconv.Itoa(util.GetUniquePort())

	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "help", args: []string{"--help"}, code: ExitOK},
		{name: "root", args: []string{}, code: ExitOK},
		{name: "unknown flag", args: []string{"run", "--bogus"}, code: ExitUsage},
		{name: "bad flag value", args: []string{"run", "-c", "many"}, code: ExitUsage},
		{name: "positional args", args: []string{"run", "extra"}, code: ExitUsage},
		{name: "unknown command", args: []string{"nope"}, code: ExitUsage},
		{name: "zero concurrency", args: []string{"run", "-c", "0"}, code: ExitFailure},
		{name: "bad mix", args: []string{"run", "--mix", "set=2"}, code: ExitFailure},
		{name: "bad format", args: []string{"run", "--format", "xml"}, code: ExitFailure},
		{name: "bad log level", args: []string{"run", "--log-level", "loud"}, code: ExitFailure},
		{name: "missing config", args: []string{"run", "--config", "/does/not/exist.yaml"}, code: ExitFailure},
		{
			name: "store unreachable",
			args: []string{
				"run", "--port", unused, "--retries", "0", "--dial-timeout", "100ms",
				"-c", "1", "-n", "1", "--log-level", "error",
			},
			code: ExitFailure,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, _, stderr := execute(t, tc.args...)
			assert.Equal(t, tc.code, code, stderr)
		})
	}
}

func TestServe(t *testing.T) {
	t.Parallel()
	port := strconv.Itoa(util.GetUniquePort())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	var stderr bytes.Buffer
	go func() {
		done <- ExecuteContext(ctx, []string{"serve", "--port", port, "--log-level", "error"}, &bytes.Buffer{}, &stderr)
	}()

	addr := net.JoinHostPort("localhost", port)
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, ExitOK, code, stderr.String())
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}
