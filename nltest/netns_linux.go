//go:build linux

// Package nltest provides the fresh-network-namespace scaffolding used by
// this module's integration tests. It is the "external collaborator" the
// rest of the module deliberately does not implement itself.
package nltest

import (
	"os"
	"runtime"
	"testing"

	"github.com/vishvananda/netns"
)

// RequireRoot skips t unless running as root. Mutating link/address/route
// state, even inside a private namespace, requires CAP_NET_ADMIN.
func RequireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
}

// FreshNamespace locks the calling goroutine to its current OS thread,
// creates a new network namespace, and switches the thread into it. A
// function registered with t.Cleanup restores the original namespace and
// unlocks the thread.
//
// Namespace handles are thread-scoped in the kernel, so every caller must
// keep runtime.LockOSThread held for the lifetime of the test; unlocking
// early would let the Go scheduler migrate the goroutine back to a thread
// still in the original namespace.
func FreshNamespace(t *testing.T) {
	t.Helper()
	RequireRoot(t)

	runtime.LockOSThread()

	origin, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		t.Fatalf("netns.Get: %v", err)
	}

	fresh, err := netns.New()
	if err != nil {
		origin.Close()
		runtime.UnlockOSThread()
		t.Fatalf("netns.New: %v", err)
	}

	t.Cleanup(func() {
		defer runtime.UnlockOSThread()
		defer origin.Close()
		defer fresh.Close()
		if err := netns.Set(origin); err != nil {
			t.Errorf("restoring original namespace: %v", err)
		}
	})
}
