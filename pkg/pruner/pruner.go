// Package pruner reacts to interface-liveness changes by dropping next
// hops that point out a newly-down interface, mutating the in-memory
// route set in place and emitting the delta those changes imply.
//
// Grounded on Fib::processInterfaceDb: a two-pass collect-then-apply,
// not in-place iterator erasure while computing membership. The first
// pass derives the set of interfaces that transitioned UP -> DOWN
// against a tracked liveness map; the second pass walks every route,
// partitions its next hops into valid/invalid against that set,
// recomputes best-next-hops, and folds the result into a RouteDelta —
// exactly Fib.cpp's loop over routeDb_.unicastRoutes /
// routeDb_.mplsRoutes, translated from manual iterator erasure to Go's
// delete-during-range on the same map, which the language permits.
package pruner

import (
	"fmt"

	"github.com/openr-go/fib-agent/pkg/api"
	"github.com/openr-go/fib-agent/pkg/routedb"
)

// ErrMissingIfName is returned when a unicast next hop carries no
// IfName, violating the invariant every unicast next hop must name the
// egress interface (MPLS POP_AND_LOOKUP next hops are exempt, per
// spec.md §3 and Fib.cpp's own comment "we don't have ifName for
// POP_AND_LOOKUP").
var ErrMissingIfName = fmt.Errorf("pruner: unicast next hop missing IfName")

// Pruner tracks interface liveness across successive InterfaceDatabase
// publications and applies the resulting prune to a RouteDatabase.
type Pruner struct {
	liveness map[string]bool // ifName -> isUp, as last observed
}

// New returns a Pruner with no interfaces yet observed.
func New() *Pruner {
	return &Pruner{liveness: make(map[string]bool)}
}

// Affected ingests a fresh InterfaceDatabase and returns the set of
// interface names that transitioned from up to down since the last
// call, per Fib.cpp's "find interfaces which were up before and we
// detected them down". Interfaces never seen before are recorded but
// never counted as affected (wasUp defaults to false).
func (p *Pruner) Affected(db api.InterfaceDatabase) map[string]struct{} {
	affected := make(map[string]struct{})
	for ifName, info := range db.Interfaces {
		wasUp := p.liveness[ifName]
		p.liveness[ifName] = info.IsUp
		if wasUp && !info.IsUp {
			affected[ifName] = struct{}{}
		}
	}
	return affected
}

// Apply prunes next hops routed out any interface in affected from
// every route in db, mutating db's maps in place, and returns the
// RouteDelta implied by the prune: a ToUpdate entry when a route's
// best-next-hop set changed but remains non-empty, a ToDelete entry
// when a route is left with no valid next hops at all (and is removed
// from db). Routes whose best-next-hop set is unaffected produce no
// delta entry, matching Fib.cpp's "add to affected routes only if best
// path has changed".
func (p *Pruner) Apply(db api.RouteDatabase, affected map[string]struct{}) (api.RouteDelta, error) {
	var delta api.RouteDelta

	for prefix, route := range db.UnicastRoutes {
		prevBest := routedb.BestUnicastNextHops(route.NextHops)

		valid := make([]api.NextHop, 0, len(route.NextHops))
		for _, nh := range route.NextHops {
			if nh.IfName == "" {
				return api.RouteDelta{}, fmt.Errorf("%w: dest=%s", ErrMissingIfName, prefix)
			}
			if _, down := affected[nh.IfName]; !down {
				valid = append(valid, nh)
			}
		}
		validBest := routedb.BestUnicastNextHops(valid)

		route.NextHops = valid
		if len(valid) == 0 {
			delta.UnicastToDelete = append(delta.UnicastToDelete, prefix)
			delete(db.UnicastRoutes, prefix)
			continue
		}
		db.UnicastRoutes[prefix] = route
		if len(validBest) > 0 && !routedb.NextHopSetEqual(prevBest, validBest) {
			updated := route
			updated.NextHops = validBest
			delta.UnicastToUpdate = append(delta.UnicastToUpdate, updated)
		}
	}

	for label, route := range db.MplsRoutes {
		prevBest := routedb.BestMplsNextHops(route.NextHops)

		valid := make([]api.NextHop, 0, len(route.NextHops))
		for _, nh := range route.NextHops {
			// POP_AND_LOOKUP next hops carry no ifName and are never
			// pruned by interface liveness.
			if nh.IfName == "" {
				valid = append(valid, nh)
				continue
			}
			if _, down := affected[nh.IfName]; !down {
				valid = append(valid, nh)
			}
		}
		validBest := routedb.BestMplsNextHops(valid)

		route.NextHops = valid
		if len(valid) == 0 {
			delta.MplsToDelete = append(delta.MplsToDelete, label)
			delete(db.MplsRoutes, label)
			continue
		}
		db.MplsRoutes[label] = route
		if len(validBest) > 0 && !routedb.NextHopSetEqual(prevBest, validBest) {
			updated := route
			updated.NextHops = validBest
			delta.MplsToUpdate = append(delta.MplsToUpdate, updated)
		}
	}

	return delta, nil
}
