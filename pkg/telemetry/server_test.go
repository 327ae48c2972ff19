package telemetry

import (
	"net/netip"
	"testing"

	"github.com/openr-go/fib-agent/pkg/api"
)

func TestRouteDatabaseToNotifications_UnicastAndMpls(t *testing.T) {
	db := api.NewRouteDatabase("node1")
	prefix := api.IpPrefix{Addr: netip.MustParseAddr("10.0.0.0"), Length: 24}
	idx := uint32(1)
	db.UnicastRoutes[prefix] = api.UnicastRoute{
		Dest:     prefix,
		NextHops: []api.NextHop{{IfIndex: &idx, IfName: "eth0", Weight: 1}},
	}
	db.MplsRoutes[100] = api.MplsRoute{
		TopLabel: 100,
		NextHops: []api.NextHop{{IfIndex: &idx, IfName: "eth0", Weight: 1}},
	}

	notifs := routeDatabaseToNotifications(db)
	if len(notifs) != 2 {
		t.Fatalf("expected 2 notifications (1 unicast + 1 mpls), got %d", len(notifs))
	}

	var sawIpv4, sawMpls bool
	for _, n := range notifs {
		if len(n.Update) != 1 {
			t.Fatalf("expected exactly one update per notification, got %d", len(n.Update))
		}
		elems := n.Update[0].Path.Elem
		switch elems[1].Name {
		case "ipv4-unicast":
			sawIpv4 = true
			if elems[2].Key["prefix"] != prefix.String() {
				t.Errorf("expected prefix key %s, got %s", prefix, elems[2].Key["prefix"])
			}
		case "mpls":
			sawMpls = true
			if elems[2].Key["label"] != "100" {
				t.Errorf("expected label key 100, got %s", elems[2].Key["label"])
			}
		}
	}
	if !sawIpv4 || !sawMpls {
		t.Errorf("expected both ipv4-unicast and mpls notifications, sawIpv4=%v sawMpls=%v", sawIpv4, sawMpls)
	}
}

func TestNextHopGroupString_FormatsGatewayAndInterface(t *testing.T) {
	gw := netip.MustParseAddr("192.168.1.1")
	idx := uint32(1)
	nextHops := []api.NextHop{
		{IfIndex: &idx, IfName: "eth0", Gateway: gw, Weight: 1},
		{IfIndex: &idx, IfName: "eth1", Weight: 1},
	}
	got := nextHopGroupString(nextHops)
	want := "eth0@192.168.1.1,eth1"
	if got != want {
		t.Errorf("nextHopGroupString() = %q, want %q", got, want)
	}
}
