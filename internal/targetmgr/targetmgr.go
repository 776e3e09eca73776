// Package targetmgr replaces the teacher's global all_targets linked list
// (aarch64.c's target->next traversal) with an explicit registry: a process
// constructs every target it drives, registers each one here under a name,
// and the GDB front end or console looks them up by name instead of walking
// a package-level list. SMP grouping is tracked alongside the registry so a
// round-robin helper can answer "who else is in core 0's group" without
// reaching back into either architecture driver.
package targetmgr

import (
	"context"
	"sync"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/target"
)

// Registry owns a set of named targets and their SMP group membership. The
// zero value is not usable; construct with New.
type Registry struct {
	mu      sync.Mutex
	targets map[string]target.Target
	order   []string          // registration order, for round-robin and listing
	groups  map[string]string // target name -> smp group name, if any
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		targets: make(map[string]target.Target),
		groups:  make(map[string]string),
	}
}

// Register adds t under name. A duplicate name replaces the previous
// registration, matching how re-probing a target in the teacher simply
// overwrote its struct in place.
func (r *Registry) Register(name string, t target.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.targets[name]; !exists {
		r.order = append(r.order, name)
	}
	r.targets[name] = t
}

// Lookup returns the target registered under name.
func (r *Registry) Lookup(name string) (target.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[name]
	if !ok {
		return nil, dbgerr.New("targetmgr.lookup", dbgerr.KindTargetInvalid, nil)
	}
	return t, nil
}

// Names returns every registered target name in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Remove drops name from the registry and from any SMP group it belonged to.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, name)
	delete(r.groups, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// JoinSMP forms an SMP group named group out of the targets registered under
// names, in the order given, and calls Target.JoinSMP on each member with
// the full peer list — mirroring the teacher's convention that every core in
// an SMP set carries the complete sibling list, itself included (spec.md §8
// scenario S6).
func (r *Registry) JoinSMP(ctx context.Context, group string, names []string) error {
	r.mu.Lock()
	peers := make([]target.Target, 0, len(names))
	for _, n := range names {
		t, ok := r.targets[n]
		if !ok {
			r.mu.Unlock()
			return dbgerr.New("targetmgr.join_smp", dbgerr.KindTargetInvalid, nil)
		}
		peers = append(peers, t)
	}
	for _, n := range names {
		r.groups[n] = group
	}
	r.mu.Unlock()

	for _, t := range peers {
		if err := t.JoinSMP(ctx, peers); err != nil {
			return dbgerr.New("targetmgr.join_smp", dbgerr.KindOf(err), err)
		}
	}
	return nil
}

// GroupMembers returns the names sharing name's SMP group, in registration
// order, including name itself. A target with no group returns just itself.
func (r *Registry) GroupMembers(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[name]
	if !ok {
		return []string{name}
	}
	var members []string
	for _, n := range r.order {
		if r.groups[n] == group {
			members = append(members, n)
		}
	}
	return members
}

// NextInGroup implements the round-robin successor the teacher's GDB layer
// gets for free by walking target->next within an smp chain
// (gdb_target_for_coreid's "advance to the next SMP peer" behaviour): given
// the currently-selected member, returns the next name in registration order
// within the same group, wrapping around. Returns name unchanged if it has
// no group or is the group's only member.
func (r *Registry) NextInGroup(name string) string {
	members := r.GroupMembers(name)
	if len(members) <= 1 {
		return name
	}
	for i, n := range members {
		if n == name {
			return members[(i+1)%len(members)]
		}
	}
	return name
}
