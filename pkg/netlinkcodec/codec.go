// Package netlinkcodec encodes a single unicast or MPLS route
// add/delete request into an rtnetlink-format byte buffer, including
// nested RTA_MULTIPATH / RTA_ENCAP attributes for MPLS PUSH/SWAP/PHP/
// POP_AND_LOOKUP next hops.
//
// This is a direct Go port of Open/R's openr/nl/NetlinkRoute.cpp: same
// header fields, same attribute nesting order, same label-encoding
// bit layout. The raw pointer arithmetic over a fixed buffer that file
// uses is replaced here by attrBuilder, a typed builder that tracks
// remaining capacity and reports ErrNoMessageBuffer instead of writing
// past the end of the slice (see Design Notes in SPEC_FULL.md §9.6).
//
// Wire constants (RTM_NEWROUTE, RTA_DST, AF_MPLS, ...) come from
// golang.org/x/sys/unix, the same package vishvananda/netlink uses for
// the identical constants.
package netlinkcodec

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/openr-go/fib-agent/pkg/api"
)

// Result errors, one per §4.1's error taxonomy. A sub-attribute failure
// aborts encoding of the entire message; callers see exactly one of
// these (or nil).
var (
	ErrInvalidAddressFamily = errors.New("netlinkcodec: invalid address family")
	ErrNoMessageBuffer      = errors.New("netlinkcodec: attribute would overflow message buffer")
	ErrNoNextHopIP          = errors.New("netlinkcodec: next hop has no gateway IP")
	ErrNoLabel              = errors.New("netlinkcodec: next hop has no MPLS label")
	ErrNoLoopbackIndex      = errors.New("netlinkcodec: POP_AND_LOOKUP next hop has no ifIndex")
	ErrUnknownLabelAction   = errors.New("netlinkcodec: unknown MPLS label action")
)

const (
	// maxMessageSize bounds a single encoded route request. Large
	// multipath/MPLS-stack routes are rare enough that this is never hit
	// in practice; it exists so a pathological route fails loudly
	// (ErrNoMessageBuffer) instead of growing an unbounded buffer.
	maxMessageSize = 4096

	nlmsgHdrLen = 16 // nlmsghdr: len, type, flags, seq, pid
	rtmsgLen    = 12 // rtmsg: family, dst_len, src_len, tos, table, protocol, scope, type, flags

	nlaAlignTo = 4 // RTA_ALIGNTO

	// 20-bit MPLS label stack entry layout (RFC 3032): label occupies
	// bits 31-12, TC bits 11-9, bottom-of-stack bit 8, TTL bits 7-0.
	labelShift    = 12
	labelBosShift = 8
	maxLabelValue = 0xFFFFF

	labelDstLenBits = 20 // rtm_dst_len for an MPLS route: the label width, not the 32-bit stack entry that encodes it
)

// rtaAlign rounds n up to the next multiple of nlaAlignTo, matching the
// kernel's RTA_ALIGN macro.
func rtaAlign(n int) int {
	return (n + nlaAlignTo - 1) &^ (nlaAlignTo - 1)
}

// attrBuilder appends rtattr-framed (and, via sub-builders, rtnexthop-
// framed) data into a fixed-capacity buffer, failing closed on
// overflow rather than writing past the slice.
type attrBuilder struct {
	buf []byte
}

func newAttrBuilder(capacity int) *attrBuilder {
	return &attrBuilder{buf: make([]byte, 0, capacity)}
}

func (b *attrBuilder) len() int { return len(b.buf) }

// raw appends p verbatim, zero-padded up to RTA_ALIGN(len(p)), and
// returns the offset it was written at.
func (b *attrBuilder) raw(p []byte) (int, error) {
	aligned := rtaAlign(len(p))
	if len(b.buf)+aligned > cap(b.buf) {
		return 0, ErrNoMessageBuffer
	}
	off := len(b.buf)
	b.buf = append(b.buf, p...)
	b.buf = append(b.buf, make([]byte, aligned-len(p))...)
	return off, nil
}

// attr appends one rtattr{len, type} header followed by payload,
// zero-padded to RTA_ALIGN as it is appended, and returns the header's
// offset so its length can be re-finalized later (setAttrLen) once
// nested content has been added after it. rta_len itself records the
// unpadded header-plus-payload length.
func (b *attrBuilder) attr(attrType uint16, payload []byte) (int, error) {
	hdrAndPayloadLen := 4 + len(payload)
	aligned := rtaAlign(hdrAndPayloadLen)
	if len(b.buf)+aligned > cap(b.buf) {
		return 0, ErrNoMessageBuffer
	}
	off := len(b.buf)
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(hdrAndPayloadLen))
	binary.LittleEndian.PutUint16(hdr[2:4], attrType)
	b.buf = append(b.buf, hdr...)
	b.buf = append(b.buf, payload...)
	b.buf = append(b.buf, make([]byte, aligned-hdrAndPayloadLen)...)
	return off, nil
}

// setAttrLen overwrites the rta_len field of the attribute header at
// off with the unaligned span [off, b.len()) — the convention the
// kernel itself uses: rta_len is the logical length, readers apply
// RTA_ALIGN themselves when walking the attribute chain.
func (b *attrBuilder) setAttrLen(off int) {
	binary.LittleEndian.PutUint16(b.buf[off:off+2], uint16(b.len()-off))
}

// Codec encodes unicast and MPLS route add/delete requests. It is
// stateless and safe for concurrent use: every method is a pure
// function of its argument.
type Codec struct{}

// New returns a ready-to-use Codec.
func New() *Codec { return &Codec{} }

// encodeLabel packs a 20-bit label into a big-endian MPLS stack-entry
// word, setting the bottom-of-stack bit when bos is true. Labels above
// 0xFFFFF are invalid; per §4.1/§8 they are encoded as label 0 and the
// caller is expected to log the rejection (the codec itself has no
// logger — see SPEC_FULL.md §9.1, logging is a RouteProgrammer/caller
// concern).
func encodeLabel(label uint32, bos bool) (uint32, bool) {
	valid := label <= maxLabelValue
	if !valid {
		label = 0
	}
	word := label << labelShift
	if bos {
		word |= 1 << labelBosShift
	}
	return word, valid
}

func putLabel(label uint32, bos bool) ([]byte, bool) {
	word, valid := encodeLabel(label, bos)
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, word)
	return b, valid
}

// addrBytes returns the raw bytes of addr (4 for v4, 16 for v6).
func addrBytes(a api.NextHop) []byte {
	return a.Gateway.AsSlice()
}

// nlMsgType mirrors rtnetlink's RTM_NEWROUTE / RTM_DELROUTE.
type nlMsgType uint16

const (
	newRoute nlMsgType = unix.RTM_NEWROUTE
	delRoute nlMsgType = unix.RTM_DELROUTE
)

// header writes the nlmsghdr + rtmsg prefix common to every request and
// returns the builder positioned right after rtmsg. nlmsg_len is left
// at 0 here and patched by finalize once the full message is built.
func (c *Codec) header(mtype nlMsgType, family uint16, dstLen uint8, protocolID uint8, scope uint8, rtype uint8, extraFlags uint32, multicast bool) *attrBuilder {
	b := newAttrBuilder(maxMessageSize)

	flags := uint32(unix.NLM_F_REQUEST | unix.NLM_F_ACK)
	if mtype != delRoute {
		flags |= unix.NLM_F_CREATE
	}
	if !multicast {
		flags |= unix.NLM_F_REPLACE
	}

	nlhdr := make([]byte, nlmsgHdrLen)
	// nlmsg_len is patched at the very end, once the full message is built.
	binary.LittleEndian.PutUint16(nlhdr[4:6], uint16(mtype))
	binary.LittleEndian.PutUint16(nlhdr[6:8], uint16(flags))
	// nlmsg_seq, nlmsg_pid left at 0: sequencing/PID assignment belongs
	// to the socket layer that sends this buffer, not the codec.
	b.buf = append(b.buf, nlhdr...)

	rtm := make([]byte, rtmsgLen)
	rtm[0] = byte(family)
	rtm[1] = dstLen
	rtm[2] = 0 // rtm_src_len
	rtm[3] = 0 // rtm_tos
	rtm[4] = byte(unix.RT_TABLE_MAIN)
	rtm[5] = protocolID
	rtm[6] = scope
	rtm[7] = rtype
	binary.LittleEndian.PutUint32(rtm[8:12], extraFlags)
	b.buf = append(b.buf, rtm...)

	return b
}

func (c *Codec) finalize(b *attrBuilder) []byte {
	binary.LittleEndian.PutUint32(b.buf[0:4], uint32(b.len()))
	return b.buf
}

// rtMsgTypeByte maps api.RouteType to the rtnetlink rtm_type byte this
// codec programs.
func rtMsgTypeByte(t api.RouteType) uint8 {
	switch t {
	case api.RouteTypeMulticast:
		return unix.RTN_MULTICAST
	case api.RouteTypeLocal:
		return unix.RTN_LOCAL
	case api.RouteTypeBlackhole:
		return unix.RTN_BLACKHOLE
	default:
		return unix.RTN_UNICAST
	}
}

func rtScopeByte(route api.UnicastRoute) uint8 {
	if route.Scope == api.RouteScopeLink {
		return unix.RT_SCOPE_LINK
	}
	return unix.RT_SCOPE_UNIVERSE
}

// AddRoute encodes an RTM_NEWROUTE request for route, including its
// next hops.
func (c *Codec) AddRoute(route api.UnicastRoute) ([]byte, error) {
	return c.unicastMessage(newRoute, route)
}

// DeleteRoute encodes an RTM_DELROUTE request for route's destination
// only — next hops are not meaningful on delete.
func (c *Codec) DeleteRoute(route api.UnicastRoute) ([]byte, error) {
	return c.unicastMessage(delRoute, route)
}

func (c *Codec) unicastMessage(mtype nlMsgType, route api.UnicastRoute) ([]byte, error) {
	if !route.Dest.Addr.Is4() && !route.Dest.Addr.Is6() {
		return nil, ErrInvalidAddressFamily
	}
	family := uint16(unix.AF_INET)
	if route.Dest.Addr.Is6() {
		family = unix.AF_INET6
	}

	multicast := route.Type == api.RouteTypeMulticast
	b := c.header(mtype, family, route.Dest.Length, route.ProtocolID, rtScopeByte(route), rtMsgTypeByte(route.Type), route.Flags, multicast)

	if _, err := b.attr(unix.RTA_DST, route.Dest.Addr.AsSlice()); err != nil {
		return nil, err
	}

	if mtype == delRoute {
		return c.finalize(b), nil
	}

	if err := c.addNextHops(b, route.NextHops, route); err != nil {
		return nil, err
	}
	return c.finalize(b), nil
}

// AddLabelRoute encodes an RTM_NEWROUTE request for an MPLS top label
// and its next hops.
func (c *Codec) AddLabelRoute(route api.MplsRoute) ([]byte, error) {
	return c.mplsMessage(newRoute, route)
}

// DeleteLabelRoute encodes an RTM_DELROUTE request for an MPLS top
// label only.
func (c *Codec) DeleteLabelRoute(route api.MplsRoute) ([]byte, error) {
	return c.mplsMessage(delRoute, route)
}

func (c *Codec) mplsMessage(mtype nlMsgType, route api.MplsRoute) ([]byte, error) {
	b := c.header(mtype, unix.AF_MPLS, labelDstLenBits, route.ProtocolID, unix.RT_SCOPE_UNIVERSE, unix.RTN_UNICAST, 0, false)

	label, valid := putLabel(route.TopLabel, true)
	if !valid {
		return nil, ErrNoLabel
	}
	if _, err := b.attr(unix.RTA_DST, label); err != nil {
		return nil, err
	}

	if mtype == delRoute {
		return c.finalize(b), nil
	}

	if err := c.addNextHops(b, route.NextHops, api.UnicastRoute{}); err != nil {
		return nil, err
	}
	return c.finalize(b), nil
}

// addNextHops appends a single RTA_MULTIPATH attribute wrapping one
// rtnexthop record per next hop, when there is at least one next hop.
// route is only consulted for its Type/Scope, used by the plain-IP
// next-hop rule; it is the zero value for MPLS callers, which never
// take that branch (every MPLS next hop carries a LabelAction).
func (c *Codec) addNextHops(b *attrBuilder, nextHops []api.NextHop, route api.UnicastRoute) error {
	if len(nextHops) == 0 {
		return nil
	}

	mpOff, err := b.attr(unix.RTA_MULTIPATH, nil)
	if err != nil {
		return err
	}

	for _, nh := range nextHops {
		rtnhOff := b.len()
		// rtnexthop header: len(2) flags(1) hops(1) ifindex(4)
		hdr := make([]byte, 8)
		var ifIndex uint32
		if nh.IfIndex != nil {
			ifIndex = *nh.IfIndex
		}
		binary.LittleEndian.PutUint32(hdr[4:8], ifIndex)
		if _, err := b.raw(hdr); err != nil {
			return err
		}

		var nerr error
		switch nh.LabelAction.Kind {
		case api.LabelActionPush:
			nerr = c.addPushNextHop(b, nh)
		case api.LabelActionSwap, api.LabelActionPHP:
			nerr = c.addSwapOrPHPNextHop(b, nh)
		case api.LabelActionPopAndLookup:
			nerr = c.addPopNextHop(b, nh)
		case api.LabelActionNone:
			nerr = c.addPlainIPNextHop(b, nh, route)
		default:
			nerr = ErrUnknownLabelAction
		}
		if nerr != nil {
			return nerr
		}

		rtnhLen := b.len() - rtnhOff
		binary.LittleEndian.PutUint16(b.buf[rtnhOff:rtnhOff+2], uint16(rtnhLen))
	}

	b.setAttrLen(mpOff)
	return nil
}

// addPlainIPNextHop: GATEWAY(addr). Absent gateway is only valid for
// multicast routes or link-scope routes (on-link next hops).
func (c *Codec) addPlainIPNextHop(b *attrBuilder, nh api.NextHop, route api.UnicastRoute) error {
	if !nh.HasGateway() {
		if route.Type == api.RouteTypeMulticast || route.Scope == api.RouteScopeLink {
			return nil
		}
		return ErrNoNextHopIP
	}
	_, err := b.attr(unix.RTA_GATEWAY, addrBytes(nh))
	return err
}

// addPushNextHop: ENCAP{MPLS_IPTUNNEL_DST=labels}, ENCAP_TYPE=MPLS,
// GATEWAY(addr).
func (c *Codec) addPushNextHop(b *attrBuilder, nh api.NextHop) error {
	if len(nh.LabelAction.PushLabels) == 0 {
		return ErrNoLabel
	}

	encapOff, err := b.attr(unix.RTA_ENCAP, nil)
	if err != nil {
		return err
	}

	var stack []byte
	for i, label := range nh.LabelAction.PushLabels {
		bos := i == len(nh.LabelAction.PushLabels)-1
		word, valid := putLabel(label, bos)
		if !valid {
			return ErrNoLabel
		}
		stack = append(stack, word...)
	}
	if _, err := b.attr(mplsIPTunnelDst, stack); err != nil {
		return err
	}
	b.setAttrLen(encapOff)

	encapType := make([]byte, 2)
	binary.LittleEndian.PutUint16(encapType, unix.LWTUNNEL_ENCAP_MPLS)
	if _, err := b.attr(unix.RTA_ENCAP_TYPE, encapType); err != nil {
		return err
	}

	if !nh.HasGateway() {
		return ErrNoNextHopIP
	}
	_, err = b.attr(unix.RTA_GATEWAY, addrBytes(nh))
	return err
}

// addSwapOrPHPNextHop: NEWDST(swap label) when present (omitted for
// PHP), then VIA{family, addr}.
func (c *Codec) addSwapOrPHPNextHop(b *attrBuilder, nh api.NextHop) error {
	if nh.LabelAction.SwapLabel != nil {
		word, valid := putLabel(*nh.LabelAction.SwapLabel, true)
		if !valid {
			return ErrNoLabel
		}
		if _, err := b.attr(unix.RTA_NEWDST, word); err != nil {
			return err
		}
	}

	if !nh.HasGateway() {
		return ErrNoNextHopIP
	}
	via := encodeVia(nh)
	_, err := b.attr(unix.RTA_VIA, via)
	return err
}

// addPopNextHop: OIF(ifIndex). POP_AND_LOOKUP strips the label stack
// and hands the packet to the loopback/lookup interface named here.
func (c *Codec) addPopNextHop(b *attrBuilder, nh api.NextHop) error {
	if !nh.HasIfIndex() {
		return ErrNoLoopbackIndex
	}
	oif := make([]byte, 4)
	binary.LittleEndian.PutUint32(oif, *nh.IfIndex)
	_, err := b.attr(unix.RTA_OIF, oif)
	return err
}

// encodeVia builds the rtvia payload: a one-byte family followed by
// the raw address bytes (5 bytes total for v4, 17 for v6), per §4.1.
func encodeVia(nh api.NextHop) []byte {
	addr := addrBytes(nh)
	via := make([]byte, 1+len(addr))
	if nh.Gateway.Is6() {
		via[0] = unix.AF_INET6
	} else {
		via[0] = unix.AF_INET
	}
	copy(via[1:], addr)
	return via
}

// mplsIPTunnelDst is RTA_ENCAP's sub-attribute carrying the pushed
// label stack (Linux's MPLS_IPTUNNEL_DST).
const mplsIPTunnelDst = 1
