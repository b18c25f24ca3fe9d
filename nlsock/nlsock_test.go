//go:build linux

package nlsock

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestNewBindsAndReportsPID(t *testing.T) {
	s, err := New(unix.NETLINK_ROUTE, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.PID(); err != nil {
		t.Fatal(err)
	}
}

func TestSendRecvLinkDump(t *testing.T) {
	s, err := New(unix.NETLINK_ROUTE, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// A bare RTM_GETLINK | NLM_F_REQUEST|NLM_F_DUMP request for all links.
	req := []byte{
		0x14, 0x00, 0x00, 0x00, 0x12, 0x00, 0x01, 0x03,
		0xfd, 0xfe, 0x38, 0x5c, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	if err := s.Send(req); err != nil {
		t.Fatal(err)
	}

	msgs, pid, err := s.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if pid != 0 {
		t.Errorf("sender pid = %d, want 0 (kernel)", pid)
	}
	if len(msgs) == 0 {
		t.Error("expected at least one message in the dump")
	}
}
