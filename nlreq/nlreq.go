// Package nlreq builds a single outbound netlink request: a frame header
// plus an ordered list of typed payloads plus an optional raw tail, all
// concatenated into one buffer with the final length patched into the first
// two bytes at serialize time.
package nlreq

import (
	"encoding/binary"

	"github.com/m-lab/rtnl/nlmsg"
)

// Request accumulates a netlink header and its payloads before being handed
// to a transaction driver.
type Request struct {
	Header Header
	data   []nlmsg.Payload
	raw    []byte
}

// Header is the mutable frame header of an in-progress Request.
type Header = nlmsg.Header

// New creates a request of the given message type with NLM_F_REQUEST always
// set in addition to the caller's flags.
func New(msgType uint16, flags int) *Request {
	return &Request{Header: nlmsg.NewHeader(msgType, flags)}
}

// AddData appends a typed payload (a family message or an *nlmsg.Attr) to
// the request, in order, and grows the header's cached length by its size.
func (r *Request) AddData(p nlmsg.Payload) {
	r.data = append(r.data, p)
	r.Header.Len += uint32(p.Len())
}

// AddRaw appends raw bytes to the request's tail, after every typed payload.
func (r *Request) AddRaw(b []byte) {
	r.raw = append(r.raw, b...)
	r.Header.Len += uint32(len(b))
}

// Serialize concatenates the header, every payload in order, and the raw
// tail, then overwrites the first two bytes of the result with the actual
// serialized length — the invariant the transaction driver relies on, and
// which is independent of whatever running total AddData/AddRaw maintained.
func (r *Request) Serialize() ([]byte, error) {
	buf := nlmsg.SerializeHeader(r.Header)

	for _, d := range r.data {
		b, err := d.Serialize()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	buf = append(buf, r.raw...)

	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(buf)))
	return buf, nil
}
