package routedb

import "github.com/openr-go/fib-agent/pkg/api"

// ComputeDelta compares two installable RouteDatabases and returns the
// patch to get from old to new, per §4.2: emit an update when a prefix
// (or MPLS label) is new or its best-next-hop set changed, emit a
// delete when a prefix present in old is absent from new. This is the
// direct generalization of the teacher's rib.go recalculateBestPath
// (there: re-derive the single best path and always push it) and
// Open/R's Fib::findDeltaRoutes (there: compare best-next-hop sets and
// only push on change) — this agent follows the latter, since pushing
// on every publication regardless of change is exactly the "thrashing
// the data plane" spec.md §1 rules out.
func ComputeDelta(oldDB, newDB api.RouteDatabase) api.RouteDelta {
	var delta api.RouteDelta

	for prefix, route := range newDB.UnicastRoutes {
		oldRoute, existed := oldDB.UnicastRoutes[prefix]
		newBest := BestUnicastNextHops(route.NextHops)
		if !existed || !nextHopSetEqual(newBest, BestUnicastNextHops(oldRoute.NextHops)) {
			delta.UnicastToUpdate = append(delta.UnicastToUpdate, withNextHops(route, newBest))
		}
	}
	for prefix := range oldDB.UnicastRoutes {
		if _, stillPresent := newDB.UnicastRoutes[prefix]; !stillPresent {
			delta.UnicastToDelete = append(delta.UnicastToDelete, prefix)
		}
	}

	for label, route := range newDB.MplsRoutes {
		oldRoute, existed := oldDB.MplsRoutes[label]
		newBest := BestMplsNextHops(route.NextHops)
		if !existed || !nextHopSetEqual(newBest, BestMplsNextHops(oldRoute.NextHops)) {
			r := route
			r.NextHops = newBest
			delta.MplsToUpdate = append(delta.MplsToUpdate, r)
		}
	}
	for label := range oldDB.MplsRoutes {
		if _, stillPresent := newDB.MplsRoutes[label]; !stillPresent {
			delta.MplsToDelete = append(delta.MplsToDelete, label)
		}
	}

	return delta
}

func withNextHops(route api.UnicastRoute, nextHops []api.NextHop) api.UnicastRoute {
	r := route
	r.NextHops = nextHops
	return r
}

// FullSync reduces a RouteDatabase to the (unicast, mpls) route slices
// with best-next-hops applied, the shape FibAgentClient.SyncFib /
// SyncMplsFib expect — the full-resync counterpart to ComputeDelta, per
// §4.5 "Full resync: computes bestNextHops for every route in the
// current RouteDatabase and calls syncFib / syncMplsFib."
func FullSync(db api.RouteDatabase) ([]api.UnicastRoute, []api.MplsRoute) {
	unicast := make([]api.UnicastRoute, 0, len(db.UnicastRoutes))
	for _, route := range db.UnicastRoutes {
		unicast = append(unicast, withNextHops(route, BestUnicastNextHops(route.NextHops)))
	}
	mpls := make([]api.MplsRoute, 0, len(db.MplsRoutes))
	for _, route := range db.MplsRoutes {
		r := route
		r.NextHops = BestMplsNextHops(route.NextHops)
		mpls = append(mpls, r)
	}
	return unicast, mpls
}
