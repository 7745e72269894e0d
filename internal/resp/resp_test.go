package resp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		request  string
		expected []string
		consumed int
		wantErr  bool
	}{
		{
			name:     "single set",
			request:  "*3\r\n$3\r\nset\r\n$3\r\nkey\r\n$3\r\nval\r\n",
			expected: []string{"set", "key", "val"},
			consumed: 31,
		},
		{
			name:     "zadd with float score",
			request:  "*4\r\n$4\r\nzadd\r\n$1\r\nz\r\n$3\r\n1.5\r\n$1\r\nm\r\n",
			expected: []string{"zadd", "z", "1.5", "m"},
			consumed: 37,
		},
		{
			name:     "pipelined commands only consume the first",
			request:  "*1\r\n$4\r\nping\r\n*1\r\n$4\r\nping\r\n",
			expected: []string{"ping"},
			consumed: 14,
		},
		{
			name:     "inline command",
			request:  "PING\r\n",
			expected: []string{"PING"},
			consumed: 6,
		},
		{
			name:     "inline command with bare newline",
			request:  "echo hello\n",
			expected: []string{"echo", "hello"},
			consumed: 11,
		},
		{
			name:     "empty array",
			request:  "*0\r\n",
			expected: []string{},
			consumed: 4,
		},
		{
			name:     "empty bulk string",
			request:  "*2\r\n$4\r\necho\r\n$0\r\n\r\n",
			expected: []string{"echo", ""},
			consumed: 20,
		},
		{
			name:    "incomplete header",
			request: "*3\r",
		},
		{
			name:    "incomplete argument",
			request: "*2\r\n$4\r\necho\r\n$5\r\nhel",
		},
		{
			name:    "incomplete inline",
			request: "PING",
		},
		{
			name:    "invalid array length",
			request: "*x\r\n",
			wantErr: true,
		},
		{
			name:    "argument is not bulk string",
			request: "*1\r\n+ping\r\n",
			wantErr: true,
		},
		{
			name:    "bulk string missing terminator",
			request: "*1\r\n$2\r\nping\r\n",
			wantErr: true,
		},
		{
			name:    "negative bulk length",
			request: "*1\r\n$-3\r\n",
			wantErr: true,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			args, n, err := ParseCommand([]byte(tc.request))
			require.Equal(t, tc.wantErr, err != nil, "error expected: %t, got err: %v", tc.wantErr, err)
			if tc.wantErr {
				return
			}
			require.Equal(t, tc.consumed, n)
			if tc.consumed == 0 {
				require.Nil(t, args)
				return
			}
			require.Equal(t, tc.expected, args)
		})
	}
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name           string
		response       string
		start          int
		expectedResult string
		expectedOffset int
	}{
		{
			name:           "valid line",
			response:       "line\r\n",
			expectedResult: "line",
			expectedOffset: 6,
		},
		{
			name:           "offset into buffer",
			response:       "$12\r\n",
			start:          1,
			expectedResult: "12",
			expectedOffset: 5,
		},
		{
			name:     "incomplete line",
			response: "incomplete",
		},
		{
			name:     "empty response",
			response: "",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, offset := parseLine([]byte(tc.response), tc.start)
			require.Equal(t, tc.expectedOffset, offset)
			if offset == 0 {
				return
			}
			require.Equal(t, tc.expectedResult, string(result))
		})
	}
}

func TestParseNumber(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name           string
		response       string
		expectedResult int
		expectedOffset int
		wantErr        bool
	}{
		{
			name:           "valid number",
			response:       "123\r\n",
			expectedResult: 123,
			expectedOffset: 5,
		},
		{
			name:     "invalid number",
			response: "invalid\r\n",
			wantErr:  true,
		},
		{
			name:     "incomplete line",
			response: "12",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, offset, err := parseNumber([]byte(tc.response), 0)
			require.Equal(t, tc.wantErr, err != nil, "error expected: %t, got err: %v", tc.wantErr, err)
			if tc.wantErr {
				return
			}
			require.Equal(t, tc.expectedResult, result)
			require.Equal(t, tc.expectedOffset, offset)
		})
	}
}

func TestAppendReplies(t *testing.T) {
	t.Parallel()
	var out []byte
	out = AppendSimpleString(out, "OK")
	out = AppendInteger(out, -42)
	out = AppendBulkString(out, "hello")
	out = AppendNull(out)
	out = AppendError(out, "ERR bad\r\nthing")
	require.Equal(t, "+OK\r\n:-42\r\n$5\r\nhello\r\n$-1\r\n-ERR bad  thing\r\n", string(out))
}
