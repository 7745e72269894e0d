package bench

import "strconv"

type State int

const (
	StateIdle State = iota
	StateGenerating
	StateExecuting
	StateAggregating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateGenerating:
		return "Generating"
	case StateExecuting:
		return "Executing"
	case StateAggregating:
		return "Aggregating"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return strconv.Itoa(int(s))
	}
}

// next lists the states each state may move to. Every path is forward only.
var next = map[State][]State{
	StateIdle:        {StateGenerating, StateFailed},
	StateGenerating:  {StateExecuting, StateFailed},
	StateExecuting:   {StateAggregating},
	StateAggregating: {StateDone},
}

func (s State) canMoveTo(to State) bool {
	for _, allowed := range next[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
