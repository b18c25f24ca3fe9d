package nlreq

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/nlmsg"
)

func TestSerializeLengthInvariant(t *testing.T) {
	req := New(unix.RTM_NEWLINK, 0)
	req.AddData(nlmsg.NewInfoMessage(0))
	req.AddData(nlmsg.NewAttr(unix.IFLA_IFNAME, []byte("lo\x00")))

	buf, err := req.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	// header(16) + ifinfomsg(16) + ifname-attr(8, padded) = 40.
	if len(buf) != 40 {
		t.Fatalf("len(buf) = %d, want 40", len(buf))
	}
	if got := uint16(buf[0]) | uint16(buf[1])<<8; got != 40 {
		t.Errorf("wire length = %d, want 40", got)
	}
}

func TestAddRawGrowsLength(t *testing.T) {
	req := New(unix.RTM_GETLINK, unix.NLM_F_DUMP)
	req.AddRaw([]byte{1, 2, 3, 4})

	buf, err := req.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != nlmsg.HdrLen+4 {
		t.Fatalf("len(buf) = %d, want %d", len(buf), nlmsg.HdrLen+4)
	}
}
