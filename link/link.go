// Package link models network link devices — the "ip link" surface — as a
// closed set of kinds (Dummy, Bridge, Veth) sharing a common attribute set,
// and builds/parses the RTM_{NEW,DEL,GET}LINK requests that carry them.
package link

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/align"
	"github.com/m-lab/rtnl/nlmsg"
)

// ErrNotFound is returned when a get resolves to zero replies.
var ErrNotFound = errors.New("link: no link found")

// ErrAmbiguous is returned when a get resolves to more than one reply.
var ErrAmbiguous = errors.New("link: multiple links found")

// Attrs holds the attributes common to every link kind.
type Attrs struct {
	Name          string
	Index         int32
	MTU           int
	TxQueueLen    int
	HardwareAddr  net.HardwareAddr
	Flags         uint32
	OperState     uint8
	NumTxQueues   int
	NumRxQueues   int
	MasterIndex   int32
	LinkType      string
}

// NewAttrs returns Attrs with only Name populated, the starting point for
// building any new link.
func NewAttrs(name string) *Attrs {
	return &Attrs{Name: name}
}

// Link is the capability contract every kind satisfies: read its common
// attributes, report its kind string, and encode its kind-specific nested
// attributes (if any) into IFLA_LINKINFO/IFLA_INFO_DATA.
type Link interface {
	Attrs() *Attrs
	Kind() string
	encodeInfoData() *nlmsg.Attr // nil if the kind carries no info data
}

// Dummy is the simplest link kind: no kind-specific fields.
type Dummy struct {
	LinkAttrs Attrs
}

// NewDummy builds a Dummy link with the given attributes.
func NewDummy(attrs Attrs) *Dummy { return &Dummy{LinkAttrs: attrs} }

// Attrs implements Link.
func (d *Dummy) Attrs() *Attrs { return &d.LinkAttrs }

// Kind implements Link.
func (d *Dummy) Kind() string { return "dummy" }

func (d *Dummy) encodeInfoData() *nlmsg.Attr { return nil }

// Bridge carries the kernel's bridge-specific tunables. A nil pointer field
// means "let the kernel default it".
type Bridge struct {
	LinkAttrs         Attrs
	HelloTime         *uint32
	AgeingTime        *uint32
	MulticastSnooping *bool
	VlanFiltering     *bool
}

// NewBridge builds a Bridge link with the given attributes and all
// kind-specific fields left at the kernel default.
func NewBridge(attrs Attrs) *Bridge { return &Bridge{LinkAttrs: attrs} }

// Attrs implements Link.
func (b *Bridge) Attrs() *Attrs { return &b.LinkAttrs }

// Kind implements Link.
func (b *Bridge) Kind() string { return "bridge" }

func (b *Bridge) encodeInfoData() *nlmsg.Attr {
	data := nlmsg.NewAttr(nlmsg.IflaInfoData|nlmsg.NestedFlag, nil)
	if b.HelloTime != nil {
		data.AddChild(nlmsg.IflaBrHelloTime, u32le(*b.HelloTime))
	}
	if b.AgeingTime != nil {
		data.AddChild(nlmsg.IflaBrAgeingTime, u32le(*b.AgeingTime))
	}
	if b.MulticastSnooping != nil {
		data.AddChild(nlmsg.IflaBrMcastSnooping, boolByte(*b.MulticastSnooping))
	}
	if b.VlanFiltering != nil {
		data.AddChild(nlmsg.IflaBrVlanFiltering, boolByte(*b.VlanFiltering))
	}
	return data
}

// Veth is a pair-creating kind: creating one end atomically creates the
// peer. PeerHWAddr is optional.
type Veth struct {
	LinkAttrs  Attrs
	PeerName   string
	PeerHWAddr net.HardwareAddr
}

// NewVeth builds a Veth link with the given attributes and peer name.
func NewVeth(attrs Attrs, peerName string) *Veth {
	return &Veth{LinkAttrs: attrs, PeerName: peerName}
}

// Attrs implements Link.
func (v *Veth) Attrs() *Attrs { return &v.LinkAttrs }

// Kind implements Link.
func (v *Veth) Kind() string { return "veth" }

// encodeInfoData builds VETH_INFO_PEER. The kernel's veth_newlink creates the
// named peer from this block's own attributes, not from the primary device's
// outer ones, so MTU/queue tunables set on the primary must be repeated here
// for the peer to come up with matching values.
func (v *Veth) encodeInfoData() *nlmsg.Attr {
	data := nlmsg.NewAttr(nlmsg.IflaInfoData|nlmsg.NestedFlag, nil)

	peerInfo, _ := (&nlmsg.InfoMessage{}).Serialize()
	peerName, _ := nlmsg.NewAttr(unix.IFLA_IFNAME, align.ZeroTerminated(v.PeerName)).Serialize()
	peerValue := append(peerInfo, peerName...)
	if len(v.PeerHWAddr) > 0 {
		peerHW, _ := nlmsg.NewAttr(unix.IFLA_ADDRESS, []byte(v.PeerHWAddr)).Serialize()
		peerValue = append(peerValue, peerHW...)
	}
	if v.LinkAttrs.MTU > 0 {
		peerMTU, _ := nlmsg.NewAttr(unix.IFLA_MTU, u32le(uint32(v.LinkAttrs.MTU))).Serialize()
		peerValue = append(peerValue, peerMTU...)
	}
	if v.LinkAttrs.TxQueueLen > 0 {
		peerTxQLen, _ := nlmsg.NewAttr(unix.IFLA_TXQLEN, u32le(uint32(v.LinkAttrs.TxQueueLen))).Serialize()
		peerValue = append(peerValue, peerTxQLen...)
	}
	if v.LinkAttrs.NumTxQueues > 0 {
		peerNumTx, _ := nlmsg.NewAttr(unix.IFLA_NUM_TX_QUEUES, u32le(uint32(v.LinkAttrs.NumTxQueues))).Serialize()
		peerValue = append(peerValue, peerNumTx...)
	}
	if v.LinkAttrs.NumRxQueues > 0 {
		peerNumRx, _ := nlmsg.NewAttr(unix.IFLA_NUM_RX_QUEUES, u32le(uint32(v.LinkAttrs.NumRxQueues))).Serialize()
		peerValue = append(peerValue, peerNumRx...)
	}

	data.AddChildPayload(nlmsg.NewAttr(nlmsg.VethInfoPeer|nlmsg.NestedFlag, peerValue))
	return data
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}
