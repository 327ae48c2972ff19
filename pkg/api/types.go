// Package api holds the wire-independent data model shared by every
// component of the FIB agent: route and next-hop shapes, the route
// database, deltas between two databases, interface liveness, and the
// request/response shapes served over the in-process request channels.
//
// Every "maybe present" field is modeled with an explicit absent case
// (a zero netip.Addr, a nil pointer, or a tagged struct) rather than a
// bare zero value doing double duty — see LabelAction and NextHop.
package api

import (
	"fmt"
	"net/netip"
)

// IpPrefix is a destination prefix: an address plus a prefix length in
// [0, addr.BitLen()].
type IpPrefix struct {
	Addr   netip.Addr
	Length uint8
}

// String renders the prefix in CIDR notation.
func (p IpPrefix) String() string {
	return fmt.Sprintf("%s/%d", p.Addr, p.Length)
}

// Valid reports whether the prefix length is within the address's bit
// width and the address itself is set.
func (p IpPrefix) Valid() bool {
	return p.Addr.IsValid() && int(p.Length) <= p.Addr.BitLen()
}

// LabelActionKind enumerates the MPLS actions a NextHop may carry.
type LabelActionKind uint8

const (
	// LabelActionNone marks a plain IP next hop (no MPLS action).
	LabelActionNone LabelActionKind = iota
	// LabelActionPush pushes a label stack (PushLabels) onto the packet.
	LabelActionPush
	// LabelActionSwap replaces the top label with SwapLabel.
	LabelActionSwap
	// LabelActionPHP is penultimate-hop-pop: forward without a label.
	LabelActionPHP
	// LabelActionPopAndLookup strips the label stack and re-looks-up.
	LabelActionPopAndLookup
)

func (k LabelActionKind) String() string {
	switch k {
	case LabelActionNone:
		return "NONE"
	case LabelActionPush:
		return "PUSH"
	case LabelActionSwap:
		return "SWAP"
	case LabelActionPHP:
		return "PHP"
	case LabelActionPopAndLookup:
		return "POP_AND_LOOKUP"
	default:
		return "UNKNOWN"
	}
}

// LabelAction is a sum type over the MPLS actions a NextHop may carry.
// Kind selects which of PushLabels/SwapLabel is meaningful; both are nil
// when Kind is LabelActionNone, LabelActionPHP or LabelActionPopAndLookup
// (PHP needs no label, POP_AND_LOOKUP consults OIF instead).
type LabelAction struct {
	Kind       LabelActionKind
	PushLabels []uint32 // ordered label stack, bottom last; only for Push
	SwapLabel  *uint32  // only for Swap
}

// Family identifies the address family of a NextHop's gateway.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// NextHop is a single forwarding path: (interface, gateway, optional
// MPLS action, weight for multipath tie-breaking).
type NextHop struct {
	Family      Family
	Gateway     netip.Addr // zero value (IsValid()==false) means absent
	IfIndex     *uint32
	IfName      string // empty means absent; required for unicast routes
	Weight      uint32 // default 1
	LabelAction LabelAction
}

// HasGateway reports whether Gateway is set.
func (n NextHop) HasGateway() bool { return n.Gateway.IsValid() }

// HasIfIndex reports whether IfIndex is set.
func (n NextHop) HasIfIndex() bool { return n.IfIndex != nil }

// RouteType mirrors the Linux rtnetlink rtm_type values this agent cares
// about.
type RouteType uint8

const (
	RouteTypeUnicast RouteType = iota
	RouteTypeMulticast
	RouteTypeLocal
	RouteTypeBlackhole
)

// RouteScope mirrors the Linux rtnetlink rtm_scope values this agent
// cares about.
type RouteScope uint8

const (
	RouteScopeUniverse RouteScope = iota
	RouteScopeLink
	RouteScopeHost
)

// UnicastRoute is a single IPv4/IPv6 destination and its candidate next
// hops.
type UnicastRoute struct {
	Dest         IpPrefix
	NextHops     []NextHop
	DoNotInstall bool
	Type         RouteType
	ProtocolID   uint8
	Scope        RouteScope
	Flags        uint32
	PerfEvents   *PerfTrace
}

// MplsRoute is a single MPLS top-label entry and its candidate next
// hops; every next hop must carry a LabelAction.
type MplsRoute struct {
	TopLabel   uint32 // 20-bit label
	NextHops   []NextHop
	ProtocolID uint8
	Flags      uint32
}

// RouteDatabase is the canonical in-memory route set for one node: the
// installable unicast/MPLS routes. The do-not-install shadow set is
// kept alongside by routedb.Database, not inline here, so that a
// RouteDatabase value always represents only installable routes.
type RouteDatabase struct {
	ThisNodeName  string
	UnicastRoutes map[IpPrefix]UnicastRoute
	MplsRoutes    map[uint32]MplsRoute
	PerfEvents    *PerfTrace
}

// NewRouteDatabase returns an empty, ready-to-use RouteDatabase for node.
func NewRouteDatabase(node string) RouteDatabase {
	return RouteDatabase{
		ThisNodeName:  node,
		UnicastRoutes: make(map[IpPrefix]UnicastRoute),
		MplsRoutes:    make(map[uint32]MplsRoute),
	}
}

// RouteDelta is the (adds/updates, deletes) patch between two
// successive RouteDatabases, per family.
type RouteDelta struct {
	UnicastToUpdate []UnicastRoute
	UnicastToDelete []IpPrefix
	MplsToUpdate    []MplsRoute
	MplsToDelete    []uint32
}

// Empty reports whether the delta carries no changes at all.
func (d RouteDelta) Empty() bool {
	return len(d.UnicastToUpdate) == 0 && len(d.UnicastToDelete) == 0 &&
		len(d.MplsToUpdate) == 0 && len(d.MplsToDelete) == 0
}

// InterfaceInfo is the liveness and index of one local interface.
type InterfaceInfo struct {
	IfName  string
	IsUp    bool
	IfIndex uint32
}

// InterfaceDatabase is a full interface-liveness snapshot published by
// the link monitor, keyed by interface name.
type InterfaceDatabase struct {
	ThisNodeName string
	Interfaces   map[string]InterfaceInfo
	PerfEvents   *PerfTrace
}

// PerfEvent is one named, timestamped milestone in a convergence trace.
type PerfEvent struct {
	Node      string
	EventName string
	UnixTsMs  int64
}

// PerfTrace is an ordered sequence of PerfEvents for a single
// convergence episode.
type PerfTrace struct {
	Events []PerfEvent
}

// Add appends an event to the trace.
func (t *PerfTrace) Add(node, eventName string, unixTsMs int64) {
	t.Events = append(t.Events, PerfEvent{Node: node, EventName: eventName, UnixTsMs: unixTsMs})
}

// FirstTs returns the timestamp of the first event, or 0 if empty.
func (t *PerfTrace) FirstTs() int64 {
	if t == nil || len(t.Events) == 0 {
		return 0
	}
	return t.Events[0].UnixTsMs
}

// DurationMs returns the span between the first and last event, which
// may be negative if events are out of order.
func (t *PerfTrace) DurationMs() int64 {
	if t == nil || len(t.Events) == 0 {
		return 0
	}
	return t.Events[len(t.Events)-1].UnixTsMs - t.Events[0].UnixTsMs
}

// PerfDatabase is the dump of recently logged convergence traces for one
// node, returned by a PERF_DB_GET request.
type PerfDatabase struct {
	ThisNodeName string
	Traces       []PerfTrace
}

// FibCommand enumerates the requests RouteProgrammer serves over its
// request channel.
type FibCommand uint8

const (
	RouteDBGet FibCommand = iota
	PerfDBGet
	RouteDBUninstallableGet
)

// FibRequest is sent to RouteProgrammer's request channel; Reply must be
// a buffered (or otherwise non-blocking-for-the-sender) channel of
// capacity >= 1.
type FibRequest struct {
	Cmd   FibCommand
	Reply chan FibResponse
}

// FibResponse carries exactly one populated field, selected by the
// FibCommand of the originating request.
type FibResponse struct {
	RouteDB *RouteDatabase
	PerfDB  *PerfDatabase
}

// StoreRequestType enumerates the operations PersistentStore serves.
type StoreRequestType uint8

const (
	StoreOp StoreRequestType = iota
	LoadOp
	EraseOp
)

// StoreRequest is sent to PersistentStore's request channel.
type StoreRequest struct {
	Type  StoreRequestType
	Key   string
	Data  string // meaningful only for StoreOp
	Reply chan StoreResponse
}

// StoreResponse is the answer to a StoreRequest.
type StoreResponse struct {
	Key     string
	Success bool
	Data    string // meaningful only for a successful LoadOp
}
