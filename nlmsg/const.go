package nlmsg

// Bridge and veth nested-attribute constants. golang.org/x/sys/unix only
// generates the IFLA_* constants that appear in the kernel's generic
// linux/if_link.h; the per-kind IFLA_BR_* family (linux/if_link.h's
// ifla_br_id enum) and VETH_INFO_PEER (linux/if_link.h's veth section) are
// not among them, so they are declared here the way the kernel headers do.
const (
	IflaInfoKind uint16 = 1
	IflaInfoData uint16 = 2

	IflaBrHelloTime     uint16 = 2
	IflaBrAgeingTime    uint16 = 4
	IflaBrVlanFiltering uint16 = 7
	IflaBrMcastSnooping uint16 = 23

	VethInfoPeer uint16 = 1
)
