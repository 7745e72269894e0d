package server

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/internal/resp"
	"github.com/kevindweb/loadgen/internal/storage"
)

// arity is the exact argument count of each command including its name.
// Negative values are minimums.
var arity = map[string]int{
	constants.PING:            -1,
	constants.ECHO:            2,
	constants.SET:             3,
	constants.GET:             2,
	constants.DEL:             -2,
	constants.ZADD:            -4,
	constants.ZREMRANGEBYRANK: 4,
	constants.ZCARD:           2,
	constants.FLUSHALL:        -1,
}

func checkArity(command string, n int) bool {
	want := arity[command]
	if want < 0 {
		return n >= -want
	}
	return n == want
}

func (s *Server) execute(out []byte, command string, args []string) []byte {
	if _, ok := arity[command]; !ok {
		return resp.AppendError(out, fmt.Sprintf(constants.UnknownCommandErr, args[0]))
	}

	if !checkArity(command, len(args)) {
		return resp.AppendError(out, fmt.Sprintf(constants.WrongArgsErr, command))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch command {
	case constants.PING:
		if len(args) > 1 {
			return resp.AppendBulkString(out, args[1])
		}
		return resp.AppendSimpleString(out, constants.PONG)
	case constants.ECHO:
		return resp.AppendBulkString(out, args[1])
	case constants.SET:
		return s.setResponse(out, args[1], args[2])
	case constants.GET:
		return s.getResponse(out, args[1])
	case constants.DEL:
		return s.delResponse(out, args[1:])
	case constants.ZADD:
		return s.zaddResponse(out, args[1], args[2:])
	case constants.ZREMRANGEBYRANK:
		return s.zremrangebyrankResponse(out, args[1], args[2], args[3])
	case constants.ZCARD:
		return s.zcardResponse(out, args[1])
	case constants.FLUSHALL:
		if err := s.kv.Clear(); err != nil {
			return resp.AppendError(out, "ERR "+err.Error())
		}
		return resp.AppendSimpleString(out, constants.OK)
	default:
		return resp.AppendError(out, fmt.Sprintf(constants.UnknownCommandErr, args[0]))
	}
}

func storageErr(out []byte, err error) []byte {
	if errors.Is(err, storage.ErrWrongType) {
		return resp.AppendError(out, constants.WrongTypeErr)
	}
	return resp.AppendError(out, "ERR "+err.Error())
}

func (s *Server) setResponse(out []byte, key, value string) []byte {
	if err := s.kv.Set([]byte(key), []byte(value)); err != nil {
		return storageErr(out, err)
	}
	return resp.AppendSimpleString(out, constants.OK)
}

func (s *Server) getResponse(out []byte, key string) []byte {
	val, err := s.kv.Get([]byte(key))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return resp.AppendNull(out)
	case err != nil:
		return storageErr(out, err)
	}
	return resp.AppendBulkString(out, string(val))
}

func (s *Server) delResponse(out []byte, keys []string) []byte {
	var deleted int64
	for _, key := range keys {
		ok, err := s.kv.Del([]byte(key))
		if err != nil {
			return storageErr(out, err)
		}
		if ok {
			deleted++
		}
	}
	return resp.AppendInteger(out, deleted)
}

func (s *Server) zaddResponse(out []byte, key string, pairs []string) []byte {
	if len(pairs)%2 != 0 {
		return resp.AppendError(out, fmt.Sprintf(constants.WrongArgsErr, constants.ZADD))
	}

	scores := make([]float64, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		score, err := strconv.ParseFloat(pairs[i], 64)
		if err != nil {
			return resp.AppendError(out, constants.NotFloatErr)
		}
		scores = append(scores, score)
	}

	var added int64
	for i, score := range scores {
		ok, err := s.kv.ZAdd([]byte(key), pairs[2*i+1], score)
		if err != nil {
			return storageErr(out, err)
		}
		if ok {
			added++
		}
	}
	return resp.AppendInteger(out, added)
}

func (s *Server) zremrangebyrankResponse(out []byte, key, start, stop string) []byte {
	from, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return resp.AppendError(out, constants.NotIntegerErr)
	}
	to, err := strconv.ParseInt(stop, 10, 64)
	if err != nil {
		return resp.AppendError(out, constants.NotIntegerErr)
	}

	removed, err := s.kv.ZRemRangeByRank([]byte(key), from, to)
	if err != nil {
		return storageErr(out, err)
	}
	return resp.AppendInteger(out, int64(removed))
}

func (s *Server) zcardResponse(out []byte, key string) []byte {
	n, err := s.kv.ZCard([]byte(key))
	if err != nil {
		return storageErr(out, err)
	}
	return resp.AppendInteger(out, int64(n))
}
