// Package lifetime tracks which GPU objects depend on which, so that they can
// be released in an order where nothing outlives what it was built from.
package lifetime

import (
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"
)

// Tier groups objects that are torn down together. Among objects that are free
// to go, lower tiers are released first.
type Tier int

const (
	TierCommands Tier = iota
	TierPipeline
	TierPresentation
	TierResources
	TierSurface
	TierDevice
	TierInstance
)

var tierNames = [...]string{"commands", "pipeline", "presentation", "resources", "surface", "device", "instance"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "unknown"
	}
	return tierNames[t]
}

type node struct {
	name    string
	tier    Tier
	release func()
	deps    []string
	seq     int
}

// Graph is a set of named objects, each knowing the objects it needs.
// Dependencies must be added before their dependents, so the graph cannot
// contain cycles.
type Graph struct {
	nodes map[string]*node
	seq   int
	log   *slog.Logger
}

func New(log *slog.Logger) *Graph {
	if log == nil {
		log = slog.Default()
	}
	return &Graph{nodes: map[string]*node{}, log: log}
}

// Add registers name, released by release, which must not outlive deps.
func (g *Graph) Add(name string, tier Tier, release func(), deps ...string) error {
	if _, exists := g.nodes[name]; exists {
		return errors.Newf("%s is already tracked", name)
	}
	for _, dep := range deps {
		if dep == name {
			return errors.Newf("%s cannot depend on itself", name)
		}
		if _, ok := g.nodes[dep]; !ok {
			return errors.Newf("%s depends on unknown %s", name, dep)
		}
	}

	g.seq++
	g.nodes[name] = &node{name: name, tier: tier, release: release, deps: deps, seq: g.seq}
	return nil
}

func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependents lists the tracked objects that still need name, sorted.
func (g *Graph) Dependents(name string) []string {
	var out []string
	for _, n := range g.nodes {
		for _, dep := range n.deps {
			if dep == name {
				out = append(out, n.name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Release releases a single object. It fails, releasing nothing, while other
// objects still depend on it.
func (g *Graph) Release(name string) error {
	n, ok := g.nodes[name]
	if !ok {
		return errors.Newf("%s is not tracked", name)
	}
	if dependents := g.Dependents(name); len(dependents) > 0 {
		return errors.Newf("%s is still needed by %v", name, dependents)
	}

	g.remove(n)
	return nil
}

func (g *Graph) remove(n *node) {
	delete(g.nodes, n.name)
	if n.release != nil {
		n.release()
	}
	g.log.Debug("released", "object", n.name, "tier", n.tier)
}

// Teardown releases everything, dependents before their dependencies. Ties
// go to the lower tier, then to the most recently added object. It returns
// the names in the order they were released.
func (g *Graph) Teardown() []string {
	needed := map[string]int{}
	for _, n := range g.nodes {
		for _, dep := range n.deps {
			needed[dep]++
		}
	}

	var ready []*node
	for _, n := range g.nodes {
		if needed[n.name] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].tier != ready[j].tier {
				return ready[i].tier < ready[j].tier
			}
			return ready[i].seq > ready[j].seq
		})

		n := ready[0]
		ready = ready[1:]
		g.remove(n)
		order = append(order, n.name)

		for _, dep := range n.deps {
			needed[dep]--
			if needed[dep] == 0 {
				ready = append(ready, g.nodes[dep])
			}
		}
	}
	return order
}
