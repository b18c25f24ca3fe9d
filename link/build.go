package link

import (
	"encoding/binary"
	"net"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/align"
	"github.com/m-lab/rtnl/nlmsg"
	"github.com/m-lab/rtnl/nlreq"
)

// BuildNew builds an RTM_NEWLINK request for l. flags is typically
// NLM_F_CREATE|NLM_F_EXCL|NLM_F_ACK for a fresh link or NLM_F_ACK to modify
// an existing one.
func BuildNew(l Link, flags int) *nlreq.Request {
	attrs := l.Attrs()
	req := nlreq.New(unix.RTM_NEWLINK, flags)

	change := attrs.Flags
	if change != 0 {
		change = 0xffffffff
	}
	req.AddData(&nlmsg.InfoMessage{Index: attrs.Index, Flags: attrs.Flags, Change: change})

	req.AddData(nlmsg.NewAttr(unix.IFLA_IFNAME, align.ZeroTerminated(attrs.Name)))
	if attrs.MTU > 0 {
		req.AddData(nlmsg.NewAttr(unix.IFLA_MTU, u32le(uint32(attrs.MTU))))
	}
	if attrs.TxQueueLen > 0 {
		req.AddData(nlmsg.NewAttr(unix.IFLA_TXQLEN, u32le(uint32(attrs.TxQueueLen))))
	}
	if len(attrs.HardwareAddr) > 0 {
		req.AddData(nlmsg.NewAttr(unix.IFLA_ADDRESS, []byte(attrs.HardwareAddr)))
	}
	if attrs.NumTxQueues > 0 {
		req.AddData(nlmsg.NewAttr(unix.IFLA_NUM_TX_QUEUES, u32le(uint32(attrs.NumTxQueues))))
	}
	if attrs.NumRxQueues > 0 {
		req.AddData(nlmsg.NewAttr(unix.IFLA_NUM_RX_QUEUES, u32le(uint32(attrs.NumRxQueues))))
	}

	linkInfo := nlmsg.NewAttr(unix.IFLA_LINKINFO|nlmsg.NestedFlag, nil)
	linkInfo.AddChild(nlmsg.IflaInfoKind, align.ZeroTerminated(l.Kind()))
	if data := l.encodeInfoData(); data != nil {
		linkInfo.AddChildPayload(data)
	}
	req.AddData(linkInfo)

	return req
}

// BuildSetMaster builds the follow-up RTM_NEWLINK that enslaves index to
// masterIndex, issued after a successful create when the caller set
// Attrs.MasterIndex.
func BuildSetMaster(index, masterIndex int32) *nlreq.Request {
	req := nlreq.New(unix.RTM_NEWLINK, unix.NLM_F_ACK)
	req.AddData(&nlmsg.InfoMessage{Index: index})
	req.AddData(nlmsg.NewAttr(unix.IFLA_MASTER, u32le(uint32(masterIndex))))
	return req
}

// BuildDel builds an RTM_DELLINK request naming only index.
func BuildDel(index int32) *nlreq.Request {
	req := nlreq.New(unix.RTM_DELLINK, unix.NLM_F_ACK)
	req.AddData(&nlmsg.InfoMessage{Index: index})
	return req
}

// BuildGet builds an RTM_GETLINK request. When attrs.Index is 0 it falls
// back to naming the link by IFLA_IFNAME.
func BuildGet(attrs *Attrs) *nlreq.Request {
	req := nlreq.New(unix.RTM_GETLINK, unix.NLM_F_REQUEST)
	req.AddData(&nlmsg.InfoMessage{Index: attrs.Index})
	if attrs.Index == 0 {
		req.AddData(nlmsg.NewAttr(unix.IFLA_IFNAME, align.ZeroTerminated(attrs.Name)))
	}
	return req
}

// BuildSetup builds an RTM_NEWLINK request that brings index up.
func BuildSetup(index int32) *nlreq.Request {
	req := nlreq.New(unix.RTM_NEWLINK, unix.NLM_F_ACK)
	req.AddData(&nlmsg.InfoMessage{Index: index, Flags: unix.IFF_UP, Change: unix.IFF_UP})
	return req
}

// Deserialize decodes one RTM_{NEW,GET}LINK reply payload into a Link,
// reconstructing the kind variant from IFLA_LINKINFO when present.
func Deserialize(buf []byte) (Link, error) {
	info, err := nlmsg.DeserializeInfoMessage(buf)
	if err != nil {
		return nil, err
	}
	attrMap, err := nlmsg.ParseAttrMap(buf[nlmsg.SizeofInfoMessage:])
	if err != nil {
		return nil, err
	}

	attrs := Attrs{
		Index: info.Index,
		Flags: info.Flags,
	}
	if name, ok := attrMap[unix.IFLA_IFNAME]; ok {
		attrs.Name = zeroTerminatedString(name)
	}
	if mtu, ok := attrMap[unix.IFLA_MTU]; ok && len(mtu) >= 4 {
		attrs.MTU = int(binary.LittleEndian.Uint32(mtu))
	}
	if qlen, ok := attrMap[unix.IFLA_TXQLEN]; ok && len(qlen) >= 4 {
		attrs.TxQueueLen = int(binary.LittleEndian.Uint32(qlen))
	}
	if hw, ok := attrMap[unix.IFLA_ADDRESS]; ok {
		attrs.HardwareAddr = net.HardwareAddr(hw)
	}
	if opstate, ok := attrMap[unix.IFLA_OPERSTATE]; ok && len(opstate) >= 1 {
		attrs.OperState = opstate[0]
	}
	if n, ok := attrMap[unix.IFLA_NUM_TX_QUEUES]; ok && len(n) >= 4 {
		attrs.NumTxQueues = int(binary.LittleEndian.Uint32(n))
	}
	if n, ok := attrMap[unix.IFLA_NUM_RX_QUEUES]; ok && len(n) >= 4 {
		attrs.NumRxQueues = int(binary.LittleEndian.Uint32(n))
	}
	if master, ok := attrMap[unix.IFLA_MASTER]; ok && len(master) >= 4 {
		attrs.MasterIndex = int32(binary.LittleEndian.Uint32(master))
	}

	linkInfo, hasKind := attrMap[unix.IFLA_LINKINFO]
	if !hasKind {
		attrs.LinkType = "device"
		return NewDummy(attrs), nil
	}

	kindAttrs, err := nlmsg.ParseAttrMap(linkInfo)
	if err != nil {
		return nil, err
	}
	kind := zeroTerminatedString(kindAttrs[nlmsg.IflaInfoKind])
	attrs.LinkType = kind

	var data map[uint16][]byte
	if raw, ok := kindAttrs[nlmsg.IflaInfoData]; ok {
		data, err = nlmsg.ParseAttrMap(raw)
		if err != nil {
			return nil, err
		}
	}

	switch kind {
	case "bridge":
		b := &Bridge{LinkAttrs: attrs}
		if v, ok := data[nlmsg.IflaBrHelloTime]; ok && len(v) >= 4 {
			t := binary.LittleEndian.Uint32(v)
			b.HelloTime = &t
		}
		if v, ok := data[nlmsg.IflaBrAgeingTime]; ok && len(v) >= 4 {
			t := binary.LittleEndian.Uint32(v)
			b.AgeingTime = &t
		}
		if v, ok := data[nlmsg.IflaBrMcastSnooping]; ok && len(v) >= 1 {
			t := v[0] != 0
			b.MulticastSnooping = &t
		}
		if v, ok := data[nlmsg.IflaBrVlanFiltering]; ok && len(v) >= 1 {
			t := v[0] != 0
			b.VlanFiltering = &t
		}
		return b, nil
	case "veth":
		return &Veth{LinkAttrs: attrs}, nil
	default:
		return NewDummy(attrs), nil
	}
}

func zeroTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
