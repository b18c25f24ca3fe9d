package nlmsg

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// InfoMessage is ifinfomsg: the fixed 16-byte header carried by every
// RTM_{NEW,DEL,GET}LINK message.
type InfoMessage struct {
	Family  uint8
	pad     uint8
	IfType  uint16
	Index   int32
	Flags   uint32
	Change  uint32
}

// SizeofInfoMessage is the on-wire size of InfoMessage.
const SizeofInfoMessage = 16

// NewInfoMessage builds an InfoMessage carrying only a family, the shape
// used by RTM_GETLINK dumps that don't target a specific index.
func NewInfoMessage(family int) *InfoMessage {
	return &InfoMessage{Family: uint8(family)}
}

// Len implements Payload.
func (m *InfoMessage) Len() int { return SizeofInfoMessage }

// IsEmpty implements Payload. It reports true only when family, index and
// flags are all zero; a zero family alone (the "don't filter by family"
// form) does not make the message empty when an index or flags are set.
func (m *InfoMessage) IsEmpty() bool { return m.Family == 0 && m.Index == 0 && m.Flags == 0 }

// Serialize implements Payload.
func (m *InfoMessage) Serialize() ([]byte, error) {
	buf := make([]byte, SizeofInfoMessage)
	buf[0] = m.Family
	buf[1] = 0
	binary.LittleEndian.PutUint16(buf[2:4], m.IfType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Index))
	binary.LittleEndian.PutUint32(buf[8:12], m.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], m.Change)
	return buf, nil
}

// DeserializeInfoMessage reads the first SizeofInfoMessage bytes of buf.
func DeserializeInfoMessage(buf []byte) (*InfoMessage, error) {
	if len(buf) < SizeofInfoMessage {
		return nil, fmt.Errorf("nlmsg: short ifinfomsg: %d bytes", len(buf))
	}
	return &InfoMessage{
		Family: buf[0],
		IfType: binary.LittleEndian.Uint16(buf[2:4]),
		Index:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		Flags:  binary.LittleEndian.Uint32(buf[8:12]),
		Change: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// AddressMessage is ifaddrmsg, the fixed 8-byte header carried by every
// RTM_{NEW,DEL,GET}ADDR message.
type AddressMessage struct {
	Family    uint8
	PrefixLen uint8
	Flags     uint8
	Scope     uint8
	Index     int32
}

// SizeofAddressMessage is the on-wire size of AddressMessage.
const SizeofAddressMessage = 8

// NewAddressMessage builds an AddressMessage carrying only a family.
func NewAddressMessage(family int) *AddressMessage {
	return &AddressMessage{Family: uint8(family)}
}

// Len implements Payload.
func (m *AddressMessage) Len() int { return SizeofAddressMessage }

// IsEmpty implements Payload.
func (m *AddressMessage) IsEmpty() bool { return m.Family == 0 }

// Serialize implements Payload.
func (m *AddressMessage) Serialize() ([]byte, error) {
	buf := make([]byte, SizeofAddressMessage)
	buf[0] = m.Family
	buf[1] = m.PrefixLen
	buf[2] = m.Flags
	buf[3] = m.Scope
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Index))
	return buf, nil
}

// DeserializeAddressMessage reads the first SizeofAddressMessage bytes of buf.
func DeserializeAddressMessage(buf []byte) (*AddressMessage, error) {
	if len(buf) < SizeofAddressMessage {
		return nil, fmt.Errorf("nlmsg: short ifaddrmsg: %d bytes", len(buf))
	}
	return &AddressMessage{
		Family:    buf[0],
		PrefixLen: buf[1],
		Flags:     buf[2],
		Scope:     buf[3],
		Index:     int32(binary.LittleEndian.Uint32(buf[4:8])),
	}, nil
}

// RouteMessage is rtmsg, the fixed 12-byte header carried by every
// RTM_{NEW,DEL,GET}ROUTE message.
type RouteMessage struct {
	Family   uint8
	DstLen   uint8
	SrcLen   uint8
	Tos      uint8
	Table    uint8
	Protocol uint8
	Scope    uint8
	Type     uint8
	Flags    uint32
}

// SizeofRouteMessage is the on-wire size of RouteMessage.
const SizeofRouteMessage = 12

// NewRouteMessage returns the baseline payload used for Add/Append/Replace:
// main table, boot protocol, universe scope, unicast type.
func NewRouteMessage() *RouteMessage {
	return &RouteMessage{
		Table:    unix.RT_TABLE_MAIN,
		Protocol: unix.RTPROT_BOOT,
		Scope:    unix.RT_SCOPE_UNIVERSE,
		Type:     unix.RTN_UNICAST,
	}
}

// NewRouteDelMessage returns the baseline payload used for Del: main table,
// nowhere scope (so the kernel doesn't require an exact scope match).
func NewRouteDelMessage() *RouteMessage {
	return &RouteMessage{
		Table: unix.RT_TABLE_MAIN,
		Scope: unix.RT_SCOPE_NOWHERE,
	}
}

// NewRouteListMessage returns the baseline payload used for Show: just the
// family, so the dump isn't pre-filtered by table/scope/type.
func NewRouteListMessage(family uint8) *RouteMessage {
	return &RouteMessage{Family: family}
}

// Len implements Payload.
func (m *RouteMessage) Len() int { return SizeofRouteMessage }

// IsEmpty implements Payload.
func (m *RouteMessage) IsEmpty() bool { return m.Family == 0 }

// Serialize implements Payload.
func (m *RouteMessage) Serialize() ([]byte, error) {
	buf := make([]byte, SizeofRouteMessage)
	buf[0] = m.Family
	buf[1] = m.DstLen
	buf[2] = m.SrcLen
	buf[3] = m.Tos
	buf[4] = m.Table
	buf[5] = m.Protocol
	buf[6] = m.Scope
	buf[7] = m.Type
	binary.LittleEndian.PutUint32(buf[8:12], m.Flags)
	return buf, nil
}

// DeserializeRouteMessage reads the first SizeofRouteMessage bytes of buf.
func DeserializeRouteMessage(buf []byte) (*RouteMessage, error) {
	if len(buf) < SizeofRouteMessage {
		return nil, fmt.Errorf("nlmsg: short rtmsg: %d bytes", len(buf))
	}
	return &RouteMessage{
		Family:   buf[0],
		DstLen:   buf[1],
		SrcLen:   buf[2],
		Tos:      buf[3],
		Table:    buf[4],
		Protocol: buf[5],
		Scope:    buf[6],
		Type:     buf[7],
		Flags:    binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}
