package modcache

import "context"

type chainKey struct{}

// chainFrom returns the modules being analysed on the way to ctx,
// outermost first.
func chainFrom(ctx context.Context) []string {
	chain, _ := ctx.Value(chainKey{}).([]string)
	return chain
}

func withChain(ctx context.Context, name string) context.Context {
	prev := chainFrom(ctx)
	chain := make([]string, len(prev), len(prev)+1)
	copy(chain, prev)
	return context.WithValue(ctx, chainKey{}, append(chain, name))
}

// waitGraph counts edges from a module under analysis to a module it
// waits on. Counts allow the same edge from concurrent analyses.
type waitGraph map[string]map[string]int

func (g waitGraph) add(from, to string) {
	if g[from] == nil {
		g[from] = make(map[string]int)
	}
	g[from][to]++
}

func (g waitGraph) remove(from, to string) {
	next := g[from]
	if next == nil {
		return
	}
	if next[to]--; next[to] <= 0 {
		delete(next, to)
	}
	if len(next) == 0 {
		delete(g, from)
	}
}

// reaches reports whether to is reachable from from.
func (g waitGraph) reaches(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g[n] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
