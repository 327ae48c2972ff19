// Package routedb holds the canonical in-memory route set and computes
// deltas between successive versions of it.
//
// Generalized from the teacher (aft-simulator)'s pkg/rib, which
// selects a single best path per prefix by comparing AdminDist/Metric
// across competing routing protocols. This agent's decision engine has
// already done that competition upstream (spec.md §1's "Non-goals");
// what's left here is spec.md §4.2's narrower best-next-hop rule within
// a single route: the max-weight subset of next hops, ties broken by a
// deterministic ordering over (ifIndex, gateway, labels) so that
// weight-demoted paths don't churn the data plane.
package routedb

import (
	"sort"

	"github.com/openr-go/fib-agent/pkg/api"
)

// Database is a RouteDatabase plus its partitioned do-not-install
// shadow set, kept alongside but never programmed.
type Database struct {
	Installable api.RouteDatabase
	Shadow      api.RouteDatabase // doNotInstall routes, read-only
}

// Partition splits a freshly-received RouteDatabase into the
// installable set and the do-not-install shadow set, per §4.2: "the
// doNotInstall flag is honored by partitioning newDb into installable
// and shadow sets before the delta; the shadow set is exposed
// read-only for inspection and never programmed."
func Partition(db api.RouteDatabase) Database {
	installable := api.NewRouteDatabase(db.ThisNodeName)
	installable.PerfEvents = db.PerfEvents
	shadow := api.NewRouteDatabase(db.ThisNodeName)

	for prefix, route := range db.UnicastRoutes {
		if route.DoNotInstall {
			shadow.UnicastRoutes[prefix] = route
		} else {
			installable.UnicastRoutes[prefix] = route
		}
	}
	// MPLS routes carry no doNotInstall flag in the data model (§3); all
	// are installable.
	for label, route := range db.MplsRoutes {
		installable.MplsRoutes[label] = route
	}

	return Database{Installable: installable, Shadow: shadow}
}

// BestUnicastNextHops returns the max-weight subset of nextHops, sorted
// into the deterministic order the delta computer and the interface
// pruner both rely on for stable hashing/comparison.
func BestUnicastNextHops(nextHops []api.NextHop) []api.NextHop {
	return bestNextHops(nextHops)
}

// BestMplsNextHops returns the max-weight subset of nextHops for an
// MPLS route. MPLS next hops use the same weight/tie-break rule as
// unicast ones; the only domain difference is that POP_AND_LOOKUP next
// hops may have no ifName (handled by the interface pruner, not here).
func BestMplsNextHops(nextHops []api.NextHop) []api.NextHop {
	return bestNextHops(nextHops)
}

func bestNextHops(nextHops []api.NextHop) []api.NextHop {
	if len(nextHops) == 0 {
		return nil
	}

	var maxWeight uint32
	for _, nh := range nextHops {
		w := effectiveWeight(nh)
		if w > maxWeight {
			maxWeight = w
		}
	}

	best := make([]api.NextHop, 0, len(nextHops))
	for _, nh := range nextHops {
		if effectiveWeight(nh) == maxWeight {
			best = append(best, nh)
		}
	}

	sort.Slice(best, func(i, j int) bool { return lessNextHop(best[i], best[j]) })
	return best
}

func effectiveWeight(nh api.NextHop) uint32 {
	if nh.Weight == 0 {
		return 1 // default weight per §3
	}
	return nh.Weight
}

// lessNextHop orders next hops by (ifIndex, gateway, labels) so the
// best-set comparison and any hash over it is stable across runs, per
// §4.2 and §8's "next-hop set of weight-equal paths hashes
// deterministically".
func lessNextHop(a, b api.NextHop) bool {
	ai, bi := ifIndexOf(a), ifIndexOf(b)
	if ai != bi {
		return ai < bi
	}
	ag, bg := a.Gateway.String(), b.Gateway.String()
	if ag != bg {
		return ag < bg
	}
	return labelsOf(a) < labelsOf(b)
}

func ifIndexOf(nh api.NextHop) uint32 {
	if nh.IfIndex != nil {
		return *nh.IfIndex
	}
	return 0
}

func labelsOf(nh api.NextHop) string {
	s := nh.LabelAction.Kind.String()
	for _, l := range nh.LabelAction.PushLabels {
		s += "/" + itoa(l)
	}
	if nh.LabelAction.SwapLabel != nil {
		s += "/" + itoa(*nh.LabelAction.SwapLabel)
	}
	return s
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// NextHopSetEqual reports whether two best-next-hop sets (already
// sorted by bestNextHops, e.g. the output of BestUnicastNextHops /
// BestMplsNextHops) are identical. Exported for callers outside this
// package (the interface pruner) that need the same comparison; NextHop
// contains slice fields and so is not comparable with ==.
func NextHopSetEqual(a, b []api.NextHop) bool {
	return nextHopSetEqual(a, b)
}

func nextHopSetEqual(a, b []api.NextHop) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !nextHopEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func nextHopEqual(a, b api.NextHop) bool {
	if a.Family != b.Family || a.Gateway != b.Gateway || a.IfName != b.IfName || effectiveWeight(a) != effectiveWeight(b) {
		return false
	}
	if ifIndexOf(a) != ifIndexOf(b) {
		return false
	}
	return labelActionEqual(a.LabelAction, b.LabelAction)
}

func labelActionEqual(a, b api.LabelAction) bool {
	if a.Kind != b.Kind {
		return false
	}
	if len(a.PushLabels) != len(b.PushLabels) {
		return false
	}
	for i := range a.PushLabels {
		if a.PushLabels[i] != b.PushLabels[i] {
			return false
		}
	}
	if (a.SwapLabel == nil) != (b.SwapLabel == nil) {
		return false
	}
	if a.SwapLabel != nil && *a.SwapLabel != *b.SwapLabel {
		return false
	}
	return true
}
