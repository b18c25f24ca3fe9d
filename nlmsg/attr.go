package nlmsg

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/align"
)

// AttrHdrLen is the size of the {rta_len, rta_type} pair preceding every
// attribute value.
const AttrHdrLen = unix.SizeofRtAttr

// NestedFlag (NLA_F_NESTED) set on an attribute's type tag means its value
// is itself a sequence of attributes rather than an opaque byte string.
// golang.org/x/sys/unix does not export this bit, so it is declared here the
// way the kernel headers do.
const NestedFlag = 0x8000

// ErrAttrTooLong is returned when a decoded attribute's declared length
// exceeds the bytes remaining in the buffer.
var ErrAttrTooLong = errors.New("nlmsg: attribute length exceeds buffer")

// Payload is the capability shared by every value a Request or a nested Attr
// can carry: its on-wire length, whether it is empty, and how to render it.
// InfoMessage, AddressMessage, RouteMessage, and Attr itself all implement
// it, so attribute trees recurse through the same interface as top-level
// request payloads.
type Payload interface {
	Len() int
	IsEmpty() bool
	Serialize() ([]byte, error)
}

// Attr is a type-length-value netlink attribute. Value holds the flat byte
// value; Children, when non-nil, marks this attribute as nested (its Type
// should carry NestedFlag). At serialize time Value is still written first,
// padded to a 4-byte boundary, and the encoding of Children follows it.
type Attr struct {
	Type     uint16
	Value    []byte
	Children []Payload
}

// NewAttr builds a flat (non-nested) attribute carrying value verbatim.
func NewAttr(attrType uint16, value []byte) *Attr {
	return &Attr{Type: attrType, Value: value}
}

// Len reports the attribute's logical (pre-padding) length: header plus
// value, not counting any nested children appended after the pad.
func (a *Attr) Len() int {
	return AttrHdrLen + len(a.Value)
}

// IsEmpty reports whether the attribute carries a zero-length value.
func (a *Attr) IsEmpty() bool {
	return len(a.Value) == 0
}

// AddChild appends a flat byte-valued attribute as a child, turning the
// receiver into a nested attribute.
func (a *Attr) AddChild(attrType uint16, value []byte) {
	a.AddChildPayload(NewAttr(attrType, value))
}

// AddChildPayload appends any Payload (typically another *Attr) as a child.
func (a *Attr) AddChildPayload(p Payload) {
	a.Children = append(a.Children, p)
}

// Serialize renders the attribute: header, value, padding to a 4-byte
// boundary, then the serialized children. When children are present the
// length field written into the first two bytes is the final total size
// (header + value + pad + children), not the logical Len() — mirroring the
// wire format's own self-describing nested-length convention.
func (a *Attr) Serialize() ([]byte, error) {
	buf := make([]byte, AttrHdrLen, a.Len())
	binary.LittleEndian.PutUint16(buf[0:2], uint16(a.Len()))
	binary.LittleEndian.PutUint16(buf[2:4], a.Type)
	buf = append(buf, a.Value...)

	padded := align.Up(len(buf), align.To)
	if len(buf) < padded {
		buf = append(buf, make([]byte, padded-len(buf))...)
	}

	for _, child := range a.Children {
		b, err := child.Serialize()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}

	if len(a.Children) > 0 {
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(buf)))
	}
	return buf, nil
}

// ParseAttrs decodes buf into a flat list of attributes (no recursion into
// nested values — callers that know an attribute is nested re-invoke
// ParseAttrs on its Value).
func ParseAttrs(buf []byte) ([]Attr, error) {
	var attrs []Attr

	for len(buf) >= AttrHdrLen {
		rtaLen := binary.LittleEndian.Uint16(buf[0:2])
		rtaType := binary.LittleEndian.Uint16(buf[2:4])
		if int(rtaLen) < AttrHdrLen || int(rtaLen) > len(buf) {
			return nil, fmt.Errorf("%w: declared %d, have %d", ErrAttrTooLong, rtaLen, len(buf))
		}

		value := make([]byte, int(rtaLen)-AttrHdrLen)
		copy(value, buf[AttrHdrLen:rtaLen])
		// The nested-ness bit is metadata about the value's shape, not part
		// of the type's identity, so callers can compare against the plain
		// RTA_*/IFLA_* constants regardless of whether the kernel set it.
		attrs = append(attrs, Attr{Type: rtaType &^ NestedFlag, Value: value})

		buf = buf[align.Up(int(rtaLen), align.To):]
	}

	return attrs, nil
}

// ParseAttrMap decodes buf the same way as ParseAttrs but returns a
// type-to-value map for fast lookup, matching the repeated "find this one
// attribute" access pattern used throughout the entity layer. Unknown
// attribute types are never rejected by either helper — forward
// compatibility with kernels that add new attributes is required.
func ParseAttrMap(buf []byte) (map[uint16][]byte, error) {
	attrs, err := ParseAttrs(buf)
	if err != nil {
		return nil, err
	}
	m := make(map[uint16][]byte, len(attrs))
	for _, a := range attrs {
		m[a.Type] = a.Value
	}
	return m, nil
}
