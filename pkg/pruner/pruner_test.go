package pruner

import (
	"net/netip"
	"testing"

	"github.com/openr-go/fib-agent/pkg/api"
)

func idx(i uint32) *uint32 { return &i }

func TestAffected_DetectsUpToDownTransition(t *testing.T) {
	p := New()

	p.Affected(api.InterfaceDatabase{Interfaces: map[string]api.InterfaceInfo{
		"eth0": {IfName: "eth0", IsUp: true},
	}})

	affected := p.Affected(api.InterfaceDatabase{Interfaces: map[string]api.InterfaceInfo{
		"eth0": {IfName: "eth0", IsUp: false},
	}})

	if _, ok := affected["eth0"]; !ok {
		t.Fatalf("expected eth0 to be affected after up->down transition")
	}
}

func TestAffected_NeverSeenIsNotAffected(t *testing.T) {
	p := New()
	affected := p.Affected(api.InterfaceDatabase{Interfaces: map[string]api.InterfaceInfo{
		"eth0": {IfName: "eth0", IsUp: false},
	}})
	if _, ok := affected["eth0"]; ok {
		t.Errorf("an interface never observed up should not be reported affected")
	}
}

func TestApply_DropsNextHopAndKeepsRouteWhenOtherPathSurvives(t *testing.T) {
	p := New()
	dest := api.IpPrefix{Addr: netip.MustParseAddr("10.0.0.0"), Length: 24}

	db := api.NewRouteDatabase("node1")
	db.UnicastRoutes[dest] = api.UnicastRoute{
		Dest: dest,
		NextHops: []api.NextHop{
			{IfIndex: idx(1), IfName: "eth0", Weight: 1},
			{IfIndex: idx(2), IfName: "eth1", Weight: 1},
		},
	}

	delta, err := p.Apply(db, map[string]struct{}{"eth0": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.UnicastToUpdate) != 1 {
		t.Fatalf("expected one update after pruning eth0, got %+v", delta)
	}
	remaining := db.UnicastRoutes[dest].NextHops
	if len(remaining) != 1 || remaining[0].IfName != "eth1" {
		t.Errorf("expected only eth1 next hop to remain, got %+v", remaining)
	}
}

func TestApply_DeletesRouteWithNoValidNextHops(t *testing.T) {
	p := New()
	dest := api.IpPrefix{Addr: netip.MustParseAddr("10.0.0.0"), Length: 24}

	db := api.NewRouteDatabase("node1")
	db.UnicastRoutes[dest] = api.UnicastRoute{
		Dest:     dest,
		NextHops: []api.NextHop{{IfIndex: idx(1), IfName: "eth0", Weight: 1}},
	}

	delta, err := p.Apply(db, map[string]struct{}{"eth0": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.UnicastToDelete) != 1 || delta.UnicastToDelete[0] != dest {
		t.Fatalf("expected route delete, got %+v", delta)
	}
	if _, ok := db.UnicastRoutes[dest]; ok {
		t.Errorf("route with no valid next hops should be removed from the database")
	}
}

func TestApply_UnaffectedRouteProducesNoDelta(t *testing.T) {
	p := New()
	dest := api.IpPrefix{Addr: netip.MustParseAddr("10.0.0.0"), Length: 24}

	db := api.NewRouteDatabase("node1")
	db.UnicastRoutes[dest] = api.UnicastRoute{
		Dest:     dest,
		NextHops: []api.NextHop{{IfIndex: idx(1), IfName: "eth0", Weight: 1}},
	}

	delta, err := p.Apply(db, map[string]struct{}{"eth1": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delta.Empty() {
		t.Errorf("expected no delta when no next hop is pruned, got %+v", delta)
	}
}

func TestApply_MplsPopAndLookupSurvivesWithoutIfName(t *testing.T) {
	p := New()
	label := uint32(16001)

	db := api.NewRouteDatabase("node1")
	db.MplsRoutes[label] = api.MplsRoute{
		TopLabel: label,
		NextHops: []api.NextHop{
			{LabelAction: api.LabelAction{Kind: api.LabelActionPopAndLookup}, Weight: 1},
		},
	}

	delta, err := p.Apply(db, map[string]struct{}{"eth0": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delta.Empty() {
		t.Errorf("expected no delta, POP_AND_LOOKUP next hop carries no ifName to prune")
	}
	if len(db.MplsRoutes[label].NextHops) != 1 {
		t.Errorf("POP_AND_LOOKUP next hop should have survived pruning")
	}
}

func TestApply_MissingIfNameIsAnError(t *testing.T) {
	p := New()
	dest := api.IpPrefix{Addr: netip.MustParseAddr("10.0.0.0"), Length: 24}

	db := api.NewRouteDatabase("node1")
	db.UnicastRoutes[dest] = api.UnicastRoute{
		Dest:     dest,
		NextHops: []api.NextHop{{IfIndex: idx(1), Weight: 1}}, // no IfName
	}

	if _, err := p.Apply(db, map[string]struct{}{}); err == nil {
		t.Errorf("expected ErrMissingIfName for a unicast next hop without IfName")
	}
}
