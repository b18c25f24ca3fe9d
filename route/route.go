// Package route models kernel routing table entries — the "ip route"
// surface — and builds/parses the RTM_{NEW,DEL,GET}ROUTE requests that
// carry them.
package route

import (
	"encoding/binary"
	"errors"
	"net"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/align"
	"github.com/m-lab/rtnl/nlmsg"
	"github.com/m-lab/rtnl/nlreq"
)

// ErrFamilyMismatch is returned when two or more of Dst, Src, Gw disagree on
// address family.
var ErrFamilyMismatch = errors.New("route: dst/src/gw address family mismatch")

// Cmd selects the request shape Build produces.
type Cmd int

const (
	Add Cmd = iota
	Append
	Replace
	Del
	Show
)

// Filter narrows rtnl.Handle.RouteList results beyond what the kernel dump
// itself filters by.
type Filter int

const (
	// FilterNone keeps every route in the dump.
	FilterNone Filter = iota
	// FilterOif keeps only routes whose outgoing interface matches.
	FilterOif
)

// Route is one routing table entry.
type Route struct {
	OifIndex int32
	IifIndex int32
	Family   uint8
	Dst      *net.IPNet
	Src      net.IP
	Gw       net.IP
	Tos      uint8
	Table    uint8
	Protocol uint8
	Scope    uint8
	Type     uint8
	Flags    uint32
}

// Build builds the RTM_{NEW,DEL,GET}ROUTE request for cmd, applying the
// per-command baseline payload and the family-coherence checks across
// dst/src/gw documented for this package.
func Build(cmd Cmd, r *Route) (*nlreq.Request, error) {
	var msgType uint16
	var flags int
	switch cmd {
	case Add:
		msgType, flags = unix.RTM_NEWROUTE, unix.NLM_F_CREATE|unix.NLM_F_EXCL|unix.NLM_F_ACK
	case Append:
		msgType, flags = unix.RTM_NEWROUTE, unix.NLM_F_CREATE|unix.NLM_F_APPEND|unix.NLM_F_ACK
	case Replace:
		msgType, flags = unix.RTM_NEWROUTE, unix.NLM_F_CREATE|unix.NLM_F_REPLACE|unix.NLM_F_ACK
	case Del:
		msgType, flags = unix.RTM_DELROUTE, unix.NLM_F_ACK
	case Show:
		msgType, flags = unix.RTM_GETROUTE, unix.NLM_F_DUMP
	}

	req := nlreq.New(msgType, flags)

	var msg *nlmsg.RouteMessage
	switch {
	case msgType == unix.RTM_DELROUTE:
		msg = nlmsg.NewRouteDelMessage()
	case cmd == Show:
		msg = nlmsg.NewRouteListMessage(r.Family)
	default:
		msg = nlmsg.NewRouteMessage()
	}

	var attrs []nlmsg.Payload

	if msgType != unix.RTM_GETROUTE || r.OifIndex > 0 {
		attrs = append(attrs, nlmsg.NewAttr(unix.RTA_OIF, u32le(uint32(r.OifIndex))))
	}

	if r.Dst != nil {
		family, data := familyOf(r.Dst.IP)
		msg.Family = uint8(family)
		ones, _ := r.Dst.Mask.Size()
		msg.DstLen = uint8(ones)
		attrs = append(attrs, nlmsg.NewAttr(unix.RTA_DST, data))
	}

	if r.Src != nil {
		family, data := familyOf(r.Src)
		if msg.Family == 0 {
			msg.Family = uint8(family)
		} else if msg.Family != uint8(family) {
			return nil, ErrFamilyMismatch
		}
		attrs = append(attrs, nlmsg.NewAttr(unix.RTA_PREFSRC, data))
	}

	if r.Gw != nil {
		family, data := familyOf(r.Gw)
		if msg.Family == 0 {
			msg.Family = uint8(family)
		} else if msg.Family != uint8(family) {
			return nil, ErrFamilyMismatch
		}
		attrs = append(attrs, nlmsg.NewAttr(unix.RTA_GATEWAY, data))
	}

	msg.Flags = r.Flags
	// A zero (universe) scope leaves the baseline in place, so Del keeps
	// RT_SCOPE_NOWHERE unless the caller names another scope.
	if r.Scope != unix.RT_SCOPE_UNIVERSE {
		msg.Scope = r.Scope
	}

	req.AddData(msg)
	for _, a := range attrs {
		req.AddData(a)
	}

	return req, nil
}

// BuildGet builds the single-lookup RTM_GETROUTE request (NLM_F_REQUEST
// only, no dump) used to resolve the route the kernel would choose for dst.
func BuildGet(dst net.IP) *nlreq.Request {
	req := nlreq.New(unix.RTM_GETROUTE, unix.NLM_F_REQUEST)

	family, data := familyOf(dst)
	bitLen := 32
	if family == unix.AF_INET6 {
		bitLen = 128
	}

	msg := &nlmsg.RouteMessage{
		Family: uint8(family),
		DstLen: uint8(bitLen),
		Flags:  unix.RTM_F_LOOKUP_TABLE,
	}
	req.AddData(msg)
	req.AddData(nlmsg.NewAttr(unix.RTA_DST, data))

	return req
}

// Deserialize decodes one RTM_{NEW,GET}ROUTE reply payload into a Route.
func Deserialize(buf []byte) (*Route, error) {
	msg, err := nlmsg.DeserializeRouteMessage(buf)
	if err != nil {
		return nil, err
	}
	attrMap, err := nlmsg.ParseAttrMap(buf[nlmsg.SizeofRouteMessage:])
	if err != nil {
		return nil, err
	}

	r := &Route{
		Family:   msg.Family,
		Tos:      msg.Tos,
		Table:    msg.Table,
		Protocol: msg.Protocol,
		Scope:    msg.Scope,
		Type:     msg.Type,
		Flags:    msg.Flags,
	}

	if v, ok := attrMap[unix.RTA_GATEWAY]; ok {
		if ip, err := align.BytesToIP(v); err == nil {
			r.Gw = ip
		}
	}
	if v, ok := attrMap[unix.RTA_PREFSRC]; ok {
		if ip, err := align.BytesToIP(v); err == nil {
			r.Src = ip
		}
	}
	if v, ok := attrMap[unix.RTA_DST]; ok {
		if ip, err := align.BytesToIP(v); err == nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			r.Dst = &net.IPNet{IP: ip, Mask: net.CIDRMask(int(msg.DstLen), bits)}
		}
	}
	if v, ok := attrMap[unix.RTA_OIF]; ok && len(v) >= 4 {
		r.OifIndex = int32(binary.LittleEndian.Uint32(v))
	}
	if v, ok := attrMap[unix.RTA_IIF]; ok && len(v) >= 4 {
		r.IifIndex = int32(binary.LittleEndian.Uint32(v))
	}

	return r, nil
}

func familyOf(ip net.IP) (int, []byte) {
	if v4 := ip.To4(); v4 != nil {
		return unix.AF_INET, v4
	}
	return unix.AF_INET6, ip.To16()
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
