package fibclient

import (
	"net/netip"

	"github.com/openr-go/fib-agent/pkg/api"
)

// encoding/gob compiles its encoder from the static type of the value
// passed to Encode, eagerly, for every field reachable from it —
// including fields that happen to be nil or zero for a given call. Since
// netip.Addr stores its fields unexported and implements no GobEncoder
// (only MarshalBinary/UnmarshalBinary, which gob does not consult), any
// struct containing one fails to encode at all. These wire* types mirror
// the api package's route shapes with every netip.Addr replaced by the
// []byte netip.Addr.MarshalBinary already produces, so request carries
// only gob-safe types.

type wireIpPrefix struct {
	Addr   []byte
	Length uint8
}

type wireNextHop struct {
	Family      api.Family
	Gateway     []byte
	IfIndex     *uint32
	IfName      string
	Weight      uint32
	LabelAction api.LabelAction
}

type wireUnicastRoute struct {
	Dest         wireIpPrefix
	NextHops     []wireNextHop
	DoNotInstall bool
	Type         api.RouteType
	ProtocolID   uint8
	Scope        api.RouteScope
	Flags        uint32
	PerfEvents   *api.PerfTrace
}

type wireMplsRoute struct {
	TopLabel   uint32
	NextHops   []wireNextHop
	ProtocolID uint8
	Flags      uint32
}

func addrToWire(a netip.Addr) []byte {
	b, _ := a.MarshalBinary() // never fails: MarshalBinary has no error path
	return b
}

func addrFromWire(b []byte) (netip.Addr, error) {
	var a netip.Addr
	if len(b) == 0 {
		return a, nil // zero-length means the zero, invalid Addr
	}
	if err := a.UnmarshalBinary(b); err != nil {
		return netip.Addr{}, err
	}
	return a, nil
}

func toWireIpPrefix(p api.IpPrefix) wireIpPrefix {
	return wireIpPrefix{Addr: addrToWire(p.Addr), Length: p.Length}
}

func fromWireIpPrefix(w wireIpPrefix) (api.IpPrefix, error) {
	addr, err := addrFromWire(w.Addr)
	if err != nil {
		return api.IpPrefix{}, err
	}
	return api.IpPrefix{Addr: addr, Length: w.Length}, nil
}

func toWireIpPrefixes(ps []api.IpPrefix) []wireIpPrefix {
	out := make([]wireIpPrefix, len(ps))
	for i, p := range ps {
		out[i] = toWireIpPrefix(p)
	}
	return out
}

func fromWireIpPrefixes(ws []wireIpPrefix) ([]api.IpPrefix, error) {
	out := make([]api.IpPrefix, len(ws))
	for i, w := range ws {
		p, err := fromWireIpPrefix(w)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func toWireNextHop(nh api.NextHop) wireNextHop {
	return wireNextHop{
		Family:      nh.Family,
		Gateway:     addrToWire(nh.Gateway),
		IfIndex:     nh.IfIndex,
		IfName:      nh.IfName,
		Weight:      nh.Weight,
		LabelAction: nh.LabelAction,
	}
}

func fromWireNextHop(w wireNextHop) (api.NextHop, error) {
	gw, err := addrFromWire(w.Gateway)
	if err != nil {
		return api.NextHop{}, err
	}
	return api.NextHop{
		Family:      w.Family,
		Gateway:     gw,
		IfIndex:     w.IfIndex,
		IfName:      w.IfName,
		Weight:      w.Weight,
		LabelAction: w.LabelAction,
	}, nil
}

func toWireNextHops(nhs []api.NextHop) []wireNextHop {
	out := make([]wireNextHop, len(nhs))
	for i, nh := range nhs {
		out[i] = toWireNextHop(nh)
	}
	return out
}

func fromWireNextHops(ws []wireNextHop) ([]api.NextHop, error) {
	out := make([]api.NextHop, len(ws))
	for i, w := range ws {
		nh, err := fromWireNextHop(w)
		if err != nil {
			return nil, err
		}
		out[i] = nh
	}
	return out, nil
}

func toWireUnicastRoute(r api.UnicastRoute) wireUnicastRoute {
	return wireUnicastRoute{
		Dest:         toWireIpPrefix(r.Dest),
		NextHops:     toWireNextHops(r.NextHops),
		DoNotInstall: r.DoNotInstall,
		Type:         r.Type,
		ProtocolID:   r.ProtocolID,
		Scope:        r.Scope,
		Flags:        r.Flags,
		PerfEvents:   r.PerfEvents,
	}
}

func fromWireUnicastRoute(w wireUnicastRoute) (api.UnicastRoute, error) {
	dest, err := fromWireIpPrefix(w.Dest)
	if err != nil {
		return api.UnicastRoute{}, err
	}
	nhs, err := fromWireNextHops(w.NextHops)
	if err != nil {
		return api.UnicastRoute{}, err
	}
	return api.UnicastRoute{
		Dest:         dest,
		NextHops:     nhs,
		DoNotInstall: w.DoNotInstall,
		Type:         w.Type,
		ProtocolID:   w.ProtocolID,
		Scope:        w.Scope,
		Flags:        w.Flags,
		PerfEvents:   w.PerfEvents,
	}, nil
}

func toWireUnicastRoutes(routes []api.UnicastRoute) []wireUnicastRoute {
	out := make([]wireUnicastRoute, len(routes))
	for i, r := range routes {
		out[i] = toWireUnicastRoute(r)
	}
	return out
}

func fromWireUnicastRoutes(ws []wireUnicastRoute) ([]api.UnicastRoute, error) {
	out := make([]api.UnicastRoute, len(ws))
	for i, w := range ws {
		r, err := fromWireUnicastRoute(w)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func toWireMplsRoute(r api.MplsRoute) wireMplsRoute {
	return wireMplsRoute{
		TopLabel:   r.TopLabel,
		NextHops:   toWireNextHops(r.NextHops),
		ProtocolID: r.ProtocolID,
		Flags:      r.Flags,
	}
}

func fromWireMplsRoute(w wireMplsRoute) (api.MplsRoute, error) {
	nhs, err := fromWireNextHops(w.NextHops)
	if err != nil {
		return api.MplsRoute{}, err
	}
	return api.MplsRoute{
		TopLabel:   w.TopLabel,
		NextHops:   nhs,
		ProtocolID: w.ProtocolID,
		Flags:      w.Flags,
	}, nil
}

func toWireMplsRoutes(routes []api.MplsRoute) []wireMplsRoute {
	out := make([]wireMplsRoute, len(routes))
	for i, r := range routes {
		out[i] = toWireMplsRoute(r)
	}
	return out
}

func fromWireMplsRoutes(ws []wireMplsRoute) ([]api.MplsRoute, error) {
	out := make([]api.MplsRoute, len(ws))
	for i, w := range ws {
		r, err := fromWireMplsRoute(w)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
