// Package addr models IP addresses attached to a link — the "ip addr"
// surface — and builds/parses the RTM_{NEW,DEL,GET}ADDR requests that carry
// them.
package addr

import (
	"encoding/binary"
	"net"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/align"
	"github.com/m-lab/rtnl/nlmsg"
	"github.com/m-lab/rtnl/nlreq"
)

// Cmd selects the request shape addr.Build produces.
type Cmd int

const (
	// Add creates a new address, failing if one with the same key exists.
	Add Cmd = iota
	// Replace creates or, per kernel semantics keyed on (family, prefix,
	// address), effectively adds a distinct address under the same link.
	Replace
	// Del removes an address.
	Del
)

// Family filters a list by address family.
type Family int

const (
	// AllFamilies returns both v4 and v6 addresses.
	AllFamilies Family = 0
	// V4 returns only IPv4 addresses.
	V4 Family = unix.AF_INET
	// V6 returns only IPv6 addresses.
	V6 Family = unix.AF_INET6
)

// Address is one address entry attached to a link.
type Address struct {
	Index             int32
	IPNet             net.IPNet
	Label             string
	Flags             uint8
	Scope             uint8
	Broadcast         net.IP
	Peer              *net.IPNet
	PreferredLifetime int32
	ValidLifetime     int32
}

// Build builds the RTM_{NEW,DEL}ADDR request for cmd against the link at
// index. IFA_BROADCAST and IFA_LABEL are only emitted for IPv4, matching the
// kernel's own restriction of those attributes to that family.
func Build(cmd Cmd, index int32, a *Address) (*nlreq.Request, error) {
	var msgType uint16
	var flags int
	switch cmd {
	case Add:
		msgType, flags = unix.RTM_NEWADDR, unix.NLM_F_CREATE|unix.NLM_F_EXCL|unix.NLM_F_ACK
	case Replace:
		msgType, flags = unix.RTM_NEWADDR, unix.NLM_F_CREATE|unix.NLM_F_REPLACE|unix.NLM_F_ACK
	case Del:
		msgType, flags = unix.RTM_DELADDR, unix.NLM_F_ACK
	}

	req := nlreq.New(msgType, flags)

	ip4 := a.IPNet.IP.To4()
	family := unix.AF_INET6
	localData := []byte(a.IPNet.IP.To16())
	if ip4 != nil {
		family = unix.AF_INET
		localData = ip4
	}

	peerData := localData
	if a.Peer != nil {
		peerData = peerAddrBytes(family, a.Peer.IP)
	}

	prefixLen, _ := a.IPNet.Mask.Size()
	req.AddData(&nlmsg.AddressMessage{
		Family:    uint8(family),
		PrefixLen: uint8(prefixLen),
		Flags:     a.Flags,
		Scope:     a.Scope,
		Index:     index,
	})
	req.AddData(nlmsg.NewAttr(unix.IFA_LOCAL, localData))
	req.AddData(nlmsg.NewAttr(unix.IFA_ADDRESS, peerData))

	if family == unix.AF_INET {
		bcast := a.Broadcast
		if bcast == nil {
			bcast = broadcastOf(a.IPNet)
		}
		req.AddData(nlmsg.NewAttr(unix.IFA_BROADCAST, bcast.To4()))

		if a.Label != "" {
			req.AddData(nlmsg.NewAttr(unix.IFA_LABEL, align.ZeroTerminated(a.Label)))
		}
	}

	return req, nil
}

// BuildList builds an RTM_GETADDR dump request filtered by family.
func BuildList(family Family) *nlreq.Request {
	req := nlreq.New(unix.RTM_GETADDR, unix.NLM_F_DUMP)
	req.AddData(nlmsg.NewAddressMessage(int(family)))
	return req
}

// Deserialize decodes one RTM_{NEW,GET}ADDR reply payload into an Address.
// IFA_LOCAL, IFA_BROADCAST, IFA_LABEL and IFA_CACHEINFO are populated on
// read, a deliberate resolution of the open question left by the upstream
// design (see the module-level design notes).
func Deserialize(buf []byte) (*Address, error) {
	msg, err := nlmsg.DeserializeAddressMessage(buf)
	if err != nil {
		return nil, err
	}
	attrMap, err := nlmsg.ParseAttrMap(buf[nlmsg.SizeofAddressMessage:])
	if err != nil {
		return nil, err
	}

	a := &Address{Index: msg.Index, Scope: msg.Scope, Flags: msg.Flags}

	if v, ok := attrMap[unix.IFA_ADDRESS]; ok {
		ip, err := align.BytesToIP(v)
		if err != nil {
			return nil, err
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		a.IPNet = net.IPNet{IP: ip, Mask: net.CIDRMask(int(msg.PrefixLen), bits)}
	}
	if v, ok := attrMap[unix.IFA_LOCAL]; ok {
		if ip, err := align.BytesToIP(v); err == nil && !ip.Equal(a.IPNet.IP) {
			a.Peer = &net.IPNet{IP: a.IPNet.IP, Mask: a.IPNet.Mask}
			a.IPNet.IP = ip
		}
	}
	if v, ok := attrMap[unix.IFA_BROADCAST]; ok {
		if ip, err := align.BytesToIP(v); err == nil {
			a.Broadcast = ip
		}
	}
	if v, ok := attrMap[unix.IFA_LABEL]; ok {
		a.Label = zeroTerminatedString(v)
	}
	if v, ok := attrMap[unix.IFA_CACHEINFO]; ok && len(v) >= 8 {
		a.PreferredLifetime = int32(binary.LittleEndian.Uint32(v[0:4]))
		a.ValidLifetime = int32(binary.LittleEndian.Uint32(v[4:8]))
	}

	return a, nil
}

func peerAddrBytes(family int, ip net.IP) []byte {
	if family == unix.AF_INET {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
		return nil
	}
	return ip.To16()
}

func broadcastOf(n net.IPNet) net.IP {
	ip := n.IP.To4()
	mask := n.Mask
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

func zeroTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
