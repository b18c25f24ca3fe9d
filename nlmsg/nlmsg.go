// Package nlmsg implements the netlink message codec: frame headers, the
// fixed-layout family payloads (ifinfomsg, ifaddrmsg, rtmsg), and the
// type-length-value attribute tree with its 4-byte alignment and nested
// attribute recursion.
//
// Everything here is pure encoding/decoding; nothing in this package touches
// a socket.
package nlmsg

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/align"
)

// Header is the 16-byte netlink frame header: len, type, flags, seq, pid in
// host byte order.
type Header = unix.NlMsghdr

// HdrLen is the size of Header on the wire.
const HdrLen = unix.SizeofNlMsghdr

// Message is one framed netlink message: its header and the payload bytes
// that follow it, already stripped of the trailing alignment padding.
type Message struct {
	Header Header
	Data   []byte
}

// ParseMessages walks buf, a single datagram as returned by one recvfrom,
// splitting it into framed messages. A header claiming a length shorter than
// HdrLen, or longer than the bytes remaining, stops parsing defensively
// rather than panicking on a malformed or truncated datagram.
func ParseMessages(buf []byte) ([]Message, error) {
	var msgs []Message

	for len(buf) >= HdrLen {
		var h Header
		if err := readHeader(&h, buf); err != nil {
			return nil, err
		}
		if int(h.Len) < HdrLen || int(h.Len) > len(buf) {
			break
		}

		data := make([]byte, int(h.Len)-HdrLen)
		copy(data, buf[HdrLen:h.Len])
		msgs = append(msgs, Message{Header: h, Data: data})

		buf = buf[align.Up(int(h.Len), align.To):]
	}

	return msgs, nil
}

func readHeader(h *Header, buf []byte) error {
	if len(buf) < HdrLen {
		return fmt.Errorf("nlmsg: short header: %d bytes", len(buf))
	}
	h.Len = binary.LittleEndian.Uint32(buf[0:4])
	h.Type = binary.LittleEndian.Uint16(buf[4:6])
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	h.Seq = binary.LittleEndian.Uint32(buf[8:12])
	h.Pid = binary.LittleEndian.Uint32(buf[12:16])
	return nil
}

// putHeader writes h into buf[:HdrLen] in host byte order. Since every
// platform this library targets is little-endian, "host order" and
// LittleEndian coincide; this mirrors golang.org/x/sys/unix's own choice not
// to special-case big-endian netlink hosts.
func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Len)
	binary.LittleEndian.PutUint16(buf[4:6], h.Type)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.Seq)
	binary.LittleEndian.PutUint32(buf[12:16], h.Pid)
}

// NewHeader builds a request header with NLM_F_REQUEST always set, as every
// outbound message in this library is a request.
func NewHeader(msgType uint16, flags int) Header {
	return Header{
		Len:   HdrLen,
		Type:  msgType,
		Flags: uint16(unix.NLM_F_REQUEST | flags),
	}
}

// SerializeHeader renders h as HdrLen bytes.
func SerializeHeader(h Header) []byte {
	buf := make([]byte, HdrLen)
	putHeader(buf, h)
	return buf
}
