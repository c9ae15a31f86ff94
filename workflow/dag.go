package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/toolbridge/types"
)

// Level is a batch of steps whose dependencies are all settled by earlier
// levels. Steps within a level may run concurrently.
type Level []types.CompositeStep

// Keys returns the store_as names of the level in order.
func (l Level) Keys() []string {
	keys := make([]string, len(l))
	for i, s := range l {
		keys[i] = s.StoreAs
	}
	return keys
}

// Analysis is the result of ordering a composite tool's steps.
// Unknown dependencies and duplicate keys are reported as HasCycles too so
// callers handle every malformed graph the same way.
type Analysis struct {
	Levels       []Level `json:"levels"`
	HasCycles    bool    `json:"has_cycles"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// Analyze orders steps into execution levels with Kahn's layered
// topological sort. Within a level, steps keep their input order.
func Analyze(steps []types.CompositeStep) Analysis {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.StoreAs == "" {
			return failed(fmt.Sprintf("step %d (%s) has no store_as", i, s.Call))
		}
		if _, dup := index[s.StoreAs]; dup {
			return failed(fmt.Sprintf("duplicate store_as %q", s.StoreAs))
		}
		index[s.StoreAs] = i
	}

	inDegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		seen := make(map[string]bool, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			producer, ok := index[dep]
			if !ok {
				return failed(fmt.Sprintf("step %q depends on unknown step %q", s.StoreAs, dep))
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			dependents[producer] = append(dependents[producer], i)
			inDegree[i]++
		}
	}

	var frontier []int
	for i := range steps {
		if inDegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}

	var levels []Level
	placed := 0
	for len(frontier) > 0 {
		sort.Ints(frontier)
		level := make(Level, 0, len(frontier))
		var next []int
		for _, i := range frontier {
			level = append(level, steps[i])
			for _, d := range dependents[i] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		levels = append(levels, level)
		placed += len(level)
		frontier = next
	}

	if placed < len(steps) {
		var stuck []string
		for i, s := range steps {
			if inDegree[i] > 0 {
				stuck = append(stuck, s.StoreAs)
			}
		}
		return failed("cycle detected among steps: " + strings.Join(stuck, ", "))
	}
	return Analysis{Levels: levels}
}

// TopologicalSort is Analyze that returns a DAG_CYCLE error instead of a flag.
func TopologicalSort(steps []types.CompositeStep) ([]Level, error) {
	a := Analyze(steps)
	if a.HasCycles {
		return nil, types.NewError(types.ErrDAGCycle, a.ErrorMessage)
	}
	return a.Levels, nil
}

func failed(msg string) Analysis {
	return Analysis{HasCycles: true, ErrorMessage: msg}
}
