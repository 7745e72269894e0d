package storage

import "errors"

var (
	ErrNotFound  = errors.New("key not set")
	ErrWrongType = errors.New("key holds the wrong kind of value")
)

type KeyValue interface {
	Clear() error
	Set(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Del(key []byte) (bool, error)
	ZAdd(key []byte, member string, score float64) (bool, error)
	ZRemRangeByRank(key []byte, start, stop int64) (int, error)
	ZCard(key []byte) (int, error)
	Len() int
}

func caches() []KeyValue {
	return []KeyValue{
		NewCacheMap(),
	}
}
