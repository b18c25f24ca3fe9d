// Package netlink is the facade: a process-level object keyed by protocol
// family exposing the user-visible verbs (link_add, addr_replace,
// route_list, ...). It is the only package most callers need to import.
package netlink

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/addr"
	"github.com/m-lab/rtnl/link"
	"github.com/m-lab/rtnl/route"
	"github.com/m-lab/rtnl/rtnl"
)

// Option configures a Netlink instance at construction time.
type Option func(*config)

type config struct {
	protocolCapacity int
	recvBufLen       int
}

// WithProtocolCapacity sizes the initial protocol-to-handle map, useful for
// a caller that knows it will add handles for more than NETLINK_ROUTE.
func WithProtocolCapacity(n int) Option {
	return func(c *config) { c.protocolCapacity = n }
}

// WithReceiveBufferSize overrides the per-socket receive buffer length
// (nlsock.RecvBufSize by default). Tests exercising truncation/short-read
// paths are the main reason to set this explicitly.
func WithReceiveBufferSize(n int) Option {
	return func(c *config) { c.recvBufLen = n }
}

// Netlink holds one Handle per netlink protocol family. Only NETLINK_ROUTE
// is created eagerly; other protocols, were any ever supported, would be
// created lazily on first use the same way.
type Netlink struct {
	handles    map[int]*rtnl.Handle
	recvBufLen int
}

// New creates a Netlink instance, eagerly opening the NETLINK_ROUTE handle.
func New(opts ...Option) (*Netlink, error) {
	cfg := config{protocolCapacity: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	nl := &Netlink{handles: make(map[int]*rtnl.Handle, cfg.protocolCapacity), recvBufLen: cfg.recvBufLen}
	h, err := rtnl.NewHandle(unix.NETLINK_ROUTE, cfg.recvBufLen)
	if err != nil {
		return nil, err
	}
	nl.handles[unix.NETLINK_ROUTE] = h
	return nl, nil
}

// Close releases every open protocol handle.
func (nl *Netlink) Close() error {
	var firstErr error
	for _, h := range nl.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (nl *Netlink) route() (*rtnl.Handle, error) {
	h, ok := nl.handles[unix.NETLINK_ROUTE]
	if ok {
		return h, nil
	}
	h, err := rtnl.NewHandle(unix.NETLINK_ROUTE, nl.recvBufLen)
	if err != nil {
		return nil, fmt.Errorf("netlink: open NETLINK_ROUTE handle: %w", err)
	}
	nl.handles[unix.NETLINK_ROUTE] = h
	return h, nil
}

// LinkGet retrieves a link device. Equivalent to `ip link show $link`.
func (nl *Netlink) LinkGet(attrs *link.Attrs) (link.Link, error) {
	h, err := nl.route()
	if err != nil {
		return nil, err
	}
	return h.LinkGet(attrs)
}

// LinkAdd creates a new link device. Equivalent to `ip link add $link`.
func (nl *Netlink) LinkAdd(l link.Link) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.LinkNew(l, unix.NLM_F_CREATE|unix.NLM_F_EXCL|unix.NLM_F_ACK)
}

// LinkModify modifies an existing link device. Equivalent to `ip link set $link`.
func (nl *Netlink) LinkModify(l link.Link) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.LinkNew(l, unix.NLM_F_ACK)
}

// LinkDel removes a link device. Equivalent to `ip link del $link`.
func (nl *Netlink) LinkDel(attrs *link.Attrs) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.LinkDel(attrs)
}

// LinkSetup brings a link device up. Equivalent to `ip link set $link up`.
func (nl *Netlink) LinkSetup(attrs *link.Attrs) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.LinkSetup(attrs)
}

// AddrAdd adds an address to a link. Equivalent to `ip addr add $addr dev $link`.
func (nl *Netlink) AddrAdd(attrs *link.Attrs, a *addr.Address) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.AddrHandle(addr.Add, attrs, a)
}

// AddrReplace replaces an address on a link. Equivalent to `ip addr replace $addr dev $link`.
func (nl *Netlink) AddrReplace(attrs *link.Attrs, a *addr.Address) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.AddrHandle(addr.Replace, attrs, a)
}

// AddrDel removes an address from a link. Equivalent to `ip addr del $addr dev $link`.
func (nl *Netlink) AddrDel(attrs *link.Attrs, a *addr.Address) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.AddrHandle(addr.Del, attrs, a)
}

// AddrList lists addresses on a link. Equivalent to `ip addr show dev $link`.
func (nl *Netlink) AddrList(l link.Link, family addr.Family) ([]*addr.Address, error) {
	h, err := nl.route()
	if err != nil {
		return nil, err
	}
	return h.AddrList(l, family)
}

// RouteAdd adds a route. Equivalent to `ip route add $route`.
func (nl *Netlink) RouteAdd(r *route.Route) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.RouteHandle(route.Add, r)
}

// RouteAppend appends a route. Equivalent to `ip route append $route`.
func (nl *Netlink) RouteAppend(r *route.Route) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.RouteHandle(route.Append, r)
}

// RouteReplace replaces a route. Equivalent to `ip route replace $route`.
func (nl *Netlink) RouteReplace(r *route.Route) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.RouteHandle(route.Replace, r)
}

// RouteDel removes a route. Equivalent to `ip route del $route`.
func (nl *Netlink) RouteDel(r *route.Route) error {
	h, err := nl.route()
	if err != nil {
		return err
	}
	return h.RouteHandle(route.Del, r)
}

// RouteGet resolves the route the kernel would choose for dst. Equivalent
// to `ip route get $dst`.
func (nl *Netlink) RouteGet(dst net.IP) ([]*route.Route, error) {
	h, err := nl.route()
	if err != nil {
		return nil, err
	}
	return h.RouteGet(dst)
}

// RouteList lists routes. Equivalent to `ip route show`.
func (nl *Netlink) RouteList(family addr.Family, index int32, filter route.Filter) ([]*route.Route, error) {
	h, err := nl.route()
	if err != nil {
		return nil, err
	}
	return h.RouteList(family, index, filter)
}
