package resp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/kevindweb/loadgen/internal/constants"
)

// ParseCommand reads one command from the front of buf and returns its
// arguments with the number of bytes consumed. A zero byte count with a nil
// error means buf does not hold a complete command yet.
func ParseCommand(buf []byte) ([]string, int, error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}

	if buf[0] != constants.Array {
		return parseInline(buf)
	}

	count, offset, err := parseNumber(buf, 1)
	if err != nil || offset == 0 {
		return nil, 0, err
	}

	if count > constants.MaxArrayLength {
		return nil, 0, fmt.Errorf(constants.InvalidArrayErr, 1, buf[:offset])
	}

	if count <= 0 {
		return []string{}, offset, nil
	}

	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var arg string
		arg, offset, err = processArg(buf, offset)
		if err != nil || offset == 0 {
			return nil, 0, err
		}
		args = append(args, arg)
	}

	return args, offset, nil
}

func parseInline(buf []byte) ([]string, int, error) {
	until := bytes.IndexByte(buf, constants.LineFeed)
	if until < 0 {
		return nil, 0, nil
	}

	line := bytes.TrimRight(buf[:until], string(constants.CarraigeReturn))
	return strings.Fields(string(line)), until + 1, nil
}

func processArg(buf []byte, offset int) (string, int, error) {
	if offset >= len(buf) {
		return "", 0, nil
	}

	if dataType := buf[offset]; dataType != constants.BulkString {
		return "", 0, fmt.Errorf(
			constants.InvalidDataTypeErr, constants.BulkString, offset, dataType,
		)
	}

	length, start, err := parseNumber(buf, offset+constants.DataTypeLength)
	if err != nil || start == 0 {
		return "", 0, err
	}

	if length < 0 || length > constants.MaxBulkLength {
		return "", 0, fmt.Errorf(constants.InvalidBulkErr, offset, buf[offset:start])
	}

	end := start + length
	if end+constants.NewLineLen > len(buf) {
		return "", 0, nil
	}

	if buf[end] != constants.CarraigeReturn || buf[end+1] != constants.LineFeed {
		return "", 0, fmt.Errorf(constants.MissingNewLineErr, end, constants.NewLine)
	}

	return string(buf[start:end]), end + constants.NewLineLen, nil
}

// parseLine returns the bytes between start and the next CRLF along with the
// offset just past it. The offset is zero when the line is incomplete.
func parseLine(buf []byte, start int) ([]byte, int) {
	if start > len(buf) {
		return nil, 0
	}

	until := bytes.Index(buf[start:], []byte(constants.NewLine))
	if until < 0 {
		return nil, 0
	}

	return buf[start : start+until], start + until + constants.NewLineLen
}

func parseNumber(buf []byte, start int) (int, int, error) {
	line, next := parseLine(buf, start)
	if next == 0 {
		return 0, 0, nil
	}

	num, err := strconv.Atoi(string(line))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse number at inx %d: %w", start, err)
	}

	return num, next, nil
}

func AppendSimpleString(dst []byte, msg string) []byte {
	dst = append(dst, constants.SimpleString)
	dst = append(dst, msg...)
	return append(dst, constants.NewLine...)
}

func AppendError(dst []byte, msg string) []byte {
	msg = strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
	dst = append(dst, constants.Error)
	dst = append(dst, msg...)
	return append(dst, constants.NewLine...)
}

func AppendInteger(dst []byte, n int64) []byte {
	dst = append(dst, constants.Integer)
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, constants.NewLine...)
}

func AppendBulkString(dst []byte, msg string) []byte {
	dst = append(dst, constants.BulkString)
	dst = strconv.AppendInt(dst, int64(len(msg)), 10)
	dst = append(dst, constants.NewLine...)
	dst = append(dst, msg...)
	return append(dst, constants.NewLine...)
}

func AppendNull(dst []byte) []byte {
	dst = append(dst, constants.BulkString)
	dst = append(dst, "-1"...)
	return append(dst, constants.NewLine...)
}
