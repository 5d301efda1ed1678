package algorithm

import "sort"

// derivationGraph maps "type:KEYWORD" to the nodes its derivation needs.
type derivationGraph map[string][]string

func node(typeName, keyword string) string {
	return typeName + ":" + keyword
}

// buildDerivationGraph links every derivable (type, keyword) pair to the
// input files of the algorithm deriving it. Inputs taken from an ancestor
// (from_type) point at that ancestor type.
func (c *Catalog) buildDerivationGraph() derivationGraph {
	graph := make(derivationGraph)
	for _, typeName := range c.types.Names() {
		t, _ := c.types.Get(typeName)
		for _, kw := range t.Keywords() {
			d, ok := t.Derivation(kw)
			if !ok {
				continue
			}
			from := node(typeName, kw)
			if graph[from] == nil {
				graph[from] = []string{}
			}
			algo, ok := c.byName[d.Algorithm]
			if !ok {
				continue
			}
			for _, pname := range algo.ParameterNames() {
				p := algo.Parameters[pname]
				if p.Input == "" {
					continue
				}
				src := typeName
				if p.FromType != "" {
					src = p.FromType
				}
				graph[from] = append(graph[from], node(src, p.Input))
			}
		}
	}
	return graph
}

// derivationCycles returns every cycle of the derivation graph as a path
// that starts and ends on the same node.
func (c *Catalog) derivationCycles() [][]string {
	graph := c.buildDerivationGraph()

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, cyclePath(scc, graph))
		}
	}
	return cycles
}

func hasSelfLoop(n string, graph derivationGraph) bool {
	for _, m := range graph[n] {
		if m == n {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph derivationGraph) [][]string {
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
	sort.Strings(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside scc from its smallest node back to itself.
func cyclePath(scc []string, graph derivationGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	sorted := append([]string(nil), scc...)
	sort.Strings(sorted)

	start := sorted[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, m := range graph[current] {
			if m == start || (members[m] && !visited[m]) {
				next = m
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
