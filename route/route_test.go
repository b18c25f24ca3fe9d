package route

import (
	"net"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/nlmsg"
)

func TestBuildDelUsesNowhereScope(t *testing.T) {
	req, err := Build(Del, &Route{})
	if err != nil {
		t.Fatal(err)
	}
	buf, err := req.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := nlmsg.DeserializeRouteMessage(buf[nlmsg.HdrLen:])
	if err != nil {
		t.Fatal(err)
	}
	if msg.Table != unix.RT_TABLE_MAIN {
		t.Errorf("Table = %d, want RT_TABLE_MAIN", msg.Table)
	}
	if msg.Scope != unix.RT_SCOPE_NOWHERE {
		t.Errorf("Scope = %d, want RT_SCOPE_NOWHERE", msg.Scope)
	}
}

func TestBuildAddFamilyMismatchRejected(t *testing.T) {
	_, dst, _ := net.ParseCIDR("192.168.0.0/24")
	r := &Route{
		Dst: dst,
		Src: net.ParseIP("fd00::1"),
	}
	_, err := Build(Add, r)
	if err != ErrFamilyMismatch {
		t.Fatalf("err = %v, want ErrFamilyMismatch", err)
	}
}

func TestBuildAddSetsDstLenAndFamily(t *testing.T) {
	_, dst, _ := net.ParseCIDR("192.168.0.0/24")
	req, err := Build(Add, &Route{Dst: dst, OifIndex: 2})
	if err != nil {
		t.Fatal(err)
	}
	buf, err := req.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := nlmsg.DeserializeRouteMessage(buf[nlmsg.HdrLen:])
	if err != nil {
		t.Fatal(err)
	}
	if msg.Family != unix.AF_INET {
		t.Errorf("Family = %d, want AF_INET", msg.Family)
	}
	if msg.DstLen != 24 {
		t.Errorf("DstLen = %d, want 24", msg.DstLen)
	}
}

func TestDeserializeRoundTrip(t *testing.T) {
	msg := &nlmsg.RouteMessage{Family: unix.AF_INET, DstLen: 24}
	msgBuf, _ := msg.Serialize()
	dstAttr, _ := nlmsg.NewAttr(unix.RTA_DST, net.IPv4(192, 168, 0, 0).To4()).Serialize()
	oifAttr, _ := nlmsg.NewAttr(unix.RTA_OIF, u32le(2)).Serialize()

	buf := append(msgBuf, dstAttr...)
	buf = append(buf, oifAttr...)

	r, err := Deserialize(buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.OifIndex != 2 {
		t.Errorf("OifIndex = %d, want 2", r.OifIndex)
	}
	if r.Dst == nil || !r.Dst.IP.Equal(net.IPv4(192, 168, 0, 0)) {
		t.Errorf("Dst = %v, want 192.168.0.0", r.Dst)
	}
}
