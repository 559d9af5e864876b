package aexpect

import "sync"

// Group tracks a set of background readers (Tail instances and anything
// built on top of them) so they can all be stopped together, the
// explicit-state replacement for the original implementation's
// module-level "kill all tail threads" flag.
type Group struct {
	mu      sync.Mutex
	members []interface{ stopTailing() }
}

// Add registers t with the group. A Tail may belong to more than one
// Group; Shutdown only ever stops its own members.
func (g *Group) Add(t *Tail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = append(g.members, t)
}

// Shutdown stops every registered member's background reader and blocks
// until each has exited.
func (g *Group) Shutdown() {
	g.mu.Lock()
	members := append([]interface{ stopTailing() }{}, g.members...)
	g.mu.Unlock()

	for _, m := range members {
		m.stopTailing()
	}
}
