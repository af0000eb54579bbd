package chain

import (
	"bufio"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// CycleWarning describes a loop in the include graph.
//
// Loops are warnings, not errors: the compiler refuses the back edge at load
// time, so the chain still loads, just without the looping include.
type CycleWarning struct {
	Path    []string `json:"path"`    // ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// IncludeRef is one include directive in a rule source.
type IncludeRef struct {
	Chain   string `json:"chain"`
	Include string `json:"include"`
	Line    int    `json:"line"`
}

// IncludeAnalysis is the result of a static scan of every rule source.
type IncludeAnalysis struct {
	// Graph maps each chain to the chains it includes, in source order.
	Graph map[string][]string `json:"graph"`

	Cycles []CycleWarning `json:"cycles"`

	// Missing lists includes that name a chain with no source.
	Missing []IncludeRef `json:"missing"`
}

// includeGraph maps chain name → included chain names.
type includeGraph map[string][]string

// AnalyzeIncludes scans every source in src for include directives and
// reports include loops and dangling includes without loading any chain.
//
// The algorithm:
//  1. Build chain → included chains from each source's include lines
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, or a self include, as a cycle
func AnalyzeIncludes(src Lister) (*IncludeAnalysis, error) {
	names, err := src.List()
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	// Includes may spell a listed chain differently ("common.txt") or name
	// a source List does not report; both still load, so both are scanned.
	queue := slices.Clone(names)
	graph := make(includeGraph, len(names))
	var missing []IncludeRef
	for i := 0; i < len(queue); i++ {
		name := queue[i]
		edges, err := scanIncludes(src, name)
		if err != nil {
			return nil, err
		}
		graph[name] = []string{}
		for _, e := range edges {
			target := canonicalName(src, e.Include)
			if !known[target] {
				ok, err := sourceExists(src, e.Include)
				if err != nil {
					return nil, err
				}
				if !ok {
					missing = append(missing, e)
					continue
				}
				known[target] = true
				queue = append(queue, target)
			}
			graph[name] = append(graph[name], target)
		}
	}

	var cycles []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && slices.Contains(graph[scc[0]], scc[0])) {
			cycles = append(cycles, cycleToWarning(scc, graph))
		}
	}

	return &IncludeAnalysis{Graph: graph, Cycles: cycles, Missing: missing}, nil
}

// canonicalName maps an include to the name List reports for the same
// source.
func canonicalName(src Source, name string) string {
	if c, ok := src.(Canonicalizer); ok {
		return c.Canonical(name)
	}
	return name
}

func sourceExists(src Source, name string) (bool, error) {
	rc, err := src.Open(name)
	if errors.Is(err, ErrSourceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", name, err)
	}
	rc.Close()
	return true, nil
}

func scanIncludes(src Source, name string) ([]IncludeRef, error) {
	rc, err := src.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	var edges []IncludeRef
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		kind, command, data := classify(sc.Text())
		if kind == lineTerminator && command == "include" {
			edges = append(edges, IncludeRef{Chain: name, Include: data, Line: line})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return edges, nil
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph includeGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cycleToWarning converts an SCC to a CycleWarning. The path starts at the
// alphabetically first member.
func cycleToWarning(scc []string, graph includeGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("chain includes itself: %s → %s", name, name),
			Level:   "warning",
		}
	}

	path := cyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("include loop: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// cyclePath follows include edges inside the SCC from its first member until
// it returns to the start or runs out of unvisited members.
func cyclePath(scc []string, graph includeGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true

		next := ""
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
