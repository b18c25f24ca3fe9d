//go:build linux

package nltest

import (
	"net"
	"testing"

	"github.com/m-lab/rtnl/addr"
)

func mustAddress(t *testing.T, cidr string) *addr.Address {
	t.Helper()
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", cidr, err)
	}
	ipnet.IP = ip
	return &addr.Address{IPNet: *ipnet}
}

func parseCIDR(cidr string) (net.IP, *net.IPNet, error) {
	return net.ParseCIDR(cidr)
}

func parseIP(s string) net.IP {
	return net.ParseIP(s)
}
