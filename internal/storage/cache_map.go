package storage

import (
	"fmt"
	"sort"
)

type entry struct {
	str  []byte
	zset map[string]float64
}

type CacheMap struct {
	kv map[string]*entry
}

func NewCacheMap() KeyValue {
	return &CacheMap{
		kv: map[string]*entry{},
	}
}

func (cm *CacheMap) Clear() error {
	cm.kv = map[string]*entry{}
	return nil
}

func (cm *CacheMap) Len() int {
	return len(cm.kv)
}

func (cm *CacheMap) Set(key []byte, value []byte) error {
	cm.kv[string(key)] = &entry{str: value}
	return nil
}

func (cm *CacheMap) Get(key []byte) ([]byte, error) {
	e, ok := cm.kv[string(key)]
	if !ok {
		return []byte{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if e.zset != nil {
		return []byte{}, ErrWrongType
	}

	return e.str, nil
}

func (cm *CacheMap) Del(key []byte) (bool, error) {
	_, ok := cm.kv[string(key)]
	delete(cm.kv, string(key))
	return ok, nil
}

func (cm *CacheMap) ZAdd(key []byte, member string, score float64) (bool, error) {
	e, ok := cm.kv[string(key)]
	if !ok {
		e = &entry{zset: map[string]float64{}}
		cm.kv[string(key)] = e
	}

	if e.zset == nil {
		return false, ErrWrongType
	}

	_, exists := e.zset[member]
	e.zset[member] = score
	return !exists, nil
}

func (cm *CacheMap) ZCard(key []byte) (int, error) {
	e, ok := cm.kv[string(key)]
	if !ok {
		return 0, nil
	}

	if e.zset == nil {
		return 0, ErrWrongType
	}

	return len(e.zset), nil
}

// ZRemRangeByRank removes the members ranked start..stop inclusive, ordered
// by ascending score then member. Negative ranks count from the highest.
func (cm *CacheMap) ZRemRangeByRank(key []byte, start, stop int64) (int, error) {
	e, ok := cm.kv[string(key)]
	if !ok {
		return 0, nil
	}

	if e.zset == nil {
		return 0, ErrWrongType
	}

	size := int64(len(e.zset))
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return 0, nil
	}

	ranked := make([]string, 0, size)
	for member := range e.zset {
		ranked = append(ranked, member)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := e.zset[ranked[i]], e.zset[ranked[j]]
		if a != b {
			return a < b
		}
		return ranked[i] < ranked[j]
	})

	for _, member := range ranked[start : stop+1] {
		delete(e.zset, member)
	}

	if len(e.zset) == 0 {
		delete(cm.kv, string(key))
	}

	return int(stop - start + 1), nil
}
