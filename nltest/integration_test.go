//go:build linux

package nltest

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/go/rtx"
	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/addr"
	"github.com/m-lab/rtnl/link"
	"github.com/m-lab/rtnl/netlink"
	"github.com/m-lab/rtnl/route"
	"github.com/m-lab/rtnl/rtnl"
)

func u32p(v uint32) *uint32 { return &v }
func boolp(v bool) *bool    { return &v }

// TestLinkLifecycle is scenario 1 of 6: create, rename, delete a dummy link.
func TestLinkLifecycle(t *testing.T) {
	FreshNamespace(t)
	nl, err := netlink.New()
	rtx.Must(err, "opening netlink handle")
	defer nl.Close()

	rtx.Must(nl.LinkAdd(link.NewDummy(*link.NewAttrs("foo"))), "creating dummy link")

	got, err := nl.LinkGet(link.NewAttrs("foo"))
	rtx.Must(err, "getting foo")
	if got.Attrs().Name != "foo" {
		t.Errorf("Name = %q, want foo", got.Attrs().Name)
	}
	if got.Kind() != "dummy" {
		t.Errorf("Kind() = %q, want dummy", got.Kind())
	}

	renamed := got.Attrs()
	renamed.Name = "bar"
	rtx.Must(nl.LinkModify(link.NewDummy(*renamed)), "renaming to bar")

	got, err = nl.LinkGet(link.NewAttrs("bar"))
	rtx.Must(err, "getting bar")
	if got.Attrs().Name != "bar" {
		t.Errorf("Name = %q, want bar", got.Attrs().Name)
	}

	rtx.Must(nl.LinkDel(link.NewAttrs("bar")), "deleting bar")

	// The kernel answers a get for a missing name with an ENODEV error frame.
	_, err = nl.LinkGet(link.NewAttrs("bar"))
	var nerr *rtnl.NetlinkError
	if !errors.As(err, &nerr) || nerr.Errno != -int32(unix.ENODEV) {
		t.Errorf("LinkGet(bar) after delete: err = %v, want ENODEV NetlinkError", err)
	}
}

// TestBridgeDefaults is scenario 2 of 6: kernel-defaulted bridge tunables
// survive untouched alongside the two explicitly set.
func TestBridgeDefaults(t *testing.T) {
	FreshNamespace(t)
	nl, err := netlink.New()
	rtx.Must(err, "opening netlink handle")
	defer nl.Close()

	br := link.NewBridge(*link.NewAttrs("foo"))
	br.AgeingTime = u32p(30102)
	br.VlanFiltering = boolp(true)
	rtx.Must(nl.LinkAdd(br), "creating bridge")

	got, err := nl.LinkGet(link.NewAttrs("foo"))
	rtx.Must(err, "getting bridge foo")
	gotBr, ok := got.(*link.Bridge)
	if !ok {
		t.Fatalf("LinkGet returned %T, want *link.Bridge", got)
	}
	if gotBr.HelloTime == nil || *gotBr.HelloTime != 200 {
		t.Errorf("HelloTime = %v, want 200 (kernel default)", gotBr.HelloTime)
	}
	if gotBr.AgeingTime == nil || *gotBr.AgeingTime != 30102 {
		t.Errorf("AgeingTime = %v, want 30102", gotBr.AgeingTime)
	}
	if gotBr.MulticastSnooping == nil || !*gotBr.MulticastSnooping {
		t.Errorf("MulticastSnooping = %v, want true (kernel default)", gotBr.MulticastSnooping)
	}
	if gotBr.VlanFiltering == nil || !*gotBr.VlanFiltering {
		t.Errorf("VlanFiltering = %v, want true", gotBr.VlanFiltering)
	}
}

// TestVethPair is scenario 3 of 6: creating one end creates the peer, and
// queue/MTU tunables replicate onto it.
func TestVethPair(t *testing.T) {
	FreshNamespace(t)
	nl, err := netlink.New()
	rtx.Must(err, "opening netlink handle")
	defer nl.Close()

	rtx.Must(nl.LinkAdd(link.NewBridge(*link.NewAttrs("br0"))), "creating bridge br0")
	brLink, err := nl.LinkGet(link.NewAttrs("br0"))
	rtx.Must(err, "getting br0")

	attrs := *link.NewAttrs("foo")
	attrs.MTU = 1400
	attrs.TxQueueLen = 100
	attrs.NumTxQueues = 4
	attrs.NumRxQueues = 8
	attrs.MasterIndex = brLink.Attrs().Index

	rtx.Must(nl.LinkAdd(link.NewVeth(attrs, "bar")), "creating veth pair")

	for _, name := range []string{"foo", "bar"} {
		got, err := nl.LinkGet(link.NewAttrs(name))
		rtx.Must(err, "getting "+name)
		if got.Kind() != "veth" {
			t.Errorf("%s: Kind() = %q, want veth", name, got.Kind())
		}
		if got.Attrs().MTU != 1400 {
			t.Errorf("%s: MTU = %d, want 1400", name, got.Attrs().MTU)
		}
		if got.Attrs().TxQueueLen != 100 {
			t.Errorf("%s: TxQueueLen = %d, want 100", name, got.Attrs().TxQueueLen)
		}
		if got.Attrs().NumTxQueues != 4 {
			t.Errorf("%s: NumTxQueues = %d, want 4", name, got.Attrs().NumTxQueues)
		}
		if got.Attrs().NumRxQueues != 8 {
			t.Errorf("%s: NumRxQueues = %d, want 8", name, got.Attrs().NumRxQueues)
		}
	}
}

// TestAddrReplace is scenario 4 of 6: Replace on a distinct (family, prefix,
// address) key behaves as add, not overwrite.
func TestAddrReplace(t *testing.T) {
	FreshNamespace(t)
	nl, err := netlink.New()
	rtx.Must(err, "opening netlink handle")
	defer nl.Close()

	lo, err := nl.LinkGet(link.NewAttrs("lo"))
	rtx.Must(err, "getting lo")

	a1 := mustAddress(t, "127.0.0.2/24")
	rtx.Must(nl.AddrAdd(lo.Attrs(), a1), "adding 127.0.0.2/24")

	list, err := nl.AddrList(lo, addr.V4)
	rtx.Must(err, "listing after add")
	if len(list) != 1 {
		t.Fatalf("len(list) after add = %d, want 1", len(list))
	}

	a2 := mustAddress(t, "127.0.0.3/24")
	rtx.Must(nl.AddrReplace(lo.Attrs(), a2), "replacing with 127.0.0.3/24")

	list, err = nl.AddrList(lo, addr.V4)
	rtx.Must(err, "listing after replace")
	if len(list) != 2 {
		t.Fatalf("len(list) after replace = %d, want 2 (both addresses present)", len(list))
	}

	rtx.Must(nl.AddrDel(lo.Attrs(), a2), "deleting 127.0.0.3/24")

	list, err = nl.AddrList(lo, addr.V4)
	rtx.Must(err, "listing after delete")
	if len(list) != 1 {
		t.Fatalf("len(list) after delete = %d, want 1", len(list))
	}
}

// TestRouteRoundTrip is scenario 5 of 6: add, resolve via route_get, delete.
func TestRouteRoundTrip(t *testing.T) {
	FreshNamespace(t)
	nl, err := netlink.New()
	rtx.Must(err, "opening netlink handle")
	defer nl.Close()

	rtx.Must(nl.LinkSetup(link.NewAttrs("lo")), "bringing up lo")
	lo, err := nl.LinkGet(link.NewAttrs("lo"))
	rtx.Must(err, "getting lo")

	_, dst, err := parseCIDR("192.168.0.0/24")
	rtx.Must(err, "parsing dst")
	r := &route.Route{OifIndex: lo.Attrs().Index, Dst: dst, Src: parseIP("127.1.1.1")}
	rtx.Must(nl.RouteAdd(r), "adding route")

	got, err := nl.RouteGet(parseIP("192.168.0.0"))
	rtx.Must(err, "resolving route")
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if ones, _ := got[0].Dst.Mask.Size(); !got[0].Dst.IP.Equal(dst.IP) || ones != 24 {
		t.Errorf("Dst = %v, want 192.168.0.0/24", got[0].Dst)
	}
	if got[0].OifIndex != lo.Attrs().Index {
		t.Errorf("OifIndex = %d, want %d", got[0].OifIndex, lo.Attrs().Index)
	}

	rtx.Must(nl.RouteDel(r), "deleting route")
	if _, err := nl.RouteGet(parseIP("192.168.0.0")); err == nil {
		t.Error("RouteGet after delete: want error, got none")
	}
}

// TestRouteAppendVsReplace is scenario 6 of 6.
func TestRouteAppendVsReplace(t *testing.T) {
	FreshNamespace(t)
	nl, err := netlink.New()
	rtx.Must(err, "opening netlink handle")
	defer nl.Close()

	rtx.Must(nl.LinkSetup(link.NewAttrs("lo")), "bringing up lo")
	lo, err := nl.LinkGet(link.NewAttrs("lo"))
	rtx.Must(err, "getting lo")

	_, dst, err := parseCIDR("192.168.0.0/24")
	rtx.Must(err, "parsing dst")

	base := &route.Route{OifIndex: lo.Attrs().Index, Dst: dst, Src: parseIP("127.1.1.1")}
	rtx.Must(nl.RouteAdd(base), "adding base route")

	before, err := nl.RouteList(addr.V4, lo.Attrs().Index, route.FilterOif)
	rtx.Must(err, "listing before append")

	appended := &route.Route{OifIndex: lo.Attrs().Index, Dst: dst, Src: parseIP("127.1.1.2")}
	rtx.Must(nl.RouteAppend(appended), "appending route")

	after, err := nl.RouteList(addr.V4, lo.Attrs().Index, route.FilterOif)
	rtx.Must(err, "listing after append")
	if len(after) != len(before)+1 {
		t.Fatalf("len(after) = %d, want %d (exactly one more)", len(after), len(before)+1)
	}

	replaced := &route.Route{OifIndex: lo.Attrs().Index, Dst: dst, Src: parseIP("127.1.1.3")}
	rtx.Must(nl.RouteReplace(replaced), "replacing route")

	final, err := nl.RouteList(addr.V4, lo.Attrs().Index, route.FilterOif)
	rtx.Must(err, "listing after replace")
	if len(final) != len(after) {
		t.Fatalf("len(final) = %d, want %d (unchanged)", len(final), len(after))
	}
	for _, r := range final {
		if r.Dst != nil && r.Dst.IP.Equal(dst.IP) && !r.Src.Equal(parseIP("127.1.1.3")) {
			if diff := deep.Equal(r.Src, parseIP("127.1.1.3")); diff != nil {
				t.Errorf("route to %v: Src = %v, want 127.1.1.3: %v", r.Dst, r.Src, diff)
			}
		}
	}
}
