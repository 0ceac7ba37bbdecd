package systemd

import (
	"net"
	"os"
	"os/exec"
	"strconv"
	"testing"
)

func TestGetListenersWithoutActivation(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated {
		t.Fatal("expected no socket activation")
	}
	if listeners.Metrics != nil {
		t.Fatal("expected no metrics listener")
	}
}

// TestGetListenersWithActivation re-runs itself with a listening socket
// passed as fd 3, the way systemd hands over screentime.socket.
func TestGetListenersWithActivation(t *testing.T) {
	if os.Getenv("SCREENTIME_SOCKET_CHILD") == "1" {
		checkActivatedListener(t, os.Getenv("SCREENTIME_SOCKET_ADDR"))
		return
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()
	f, err := ln.(*net.TCPListener).File()
	if err != nil {
		t.Fatalf("failed to get listener file: %v", err)
	}
	defer f.Close()

	cmd := exec.Command(os.Args[0], "-test.run=^TestGetListenersWithActivation$", "-test.v")
	cmd.ExtraFiles = []*os.File{f}
	cmd.Env = append(os.Environ(),
		"SCREENTIME_SOCKET_CHILD=1",
		"SCREENTIME_SOCKET_ADDR="+ln.Addr().String(),
		"LISTEN_FDS=1",
		"LISTEN_FDNAMES="+MetricsSocketName,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("activated child failed: %v\n%s", err, out)
	}
}

func checkActivatedListener(t *testing.T, addr string) {
	// LISTEN_PID must name the process that receives the fds.
	t.Setenv("LISTEN_PID", strconv.Itoa(os.Getpid()))

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if !listeners.Activated {
		t.Fatal("expected socket activation")
	}
	if listeners.Metrics == nil {
		t.Fatal("expected metrics listener")
	}
	defer listeners.Metrics.Close()
	if got := listeners.Metrics.Addr().String(); got != addr {
		t.Fatalf("expected metrics listener on %s, got %s", addr, got)
	}

	accepted := make(chan error, 1)
	go func() {
		conn, err := listeners.Metrics.Accept()
		if err == nil {
			conn.Close()
		}
		accepted <- err
	}()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial activated listener: %v", err)
	}
	conn.Close()
	if err := <-accepted; err != nil {
		t.Fatalf("activated listener did not accept: %v", err)
	}
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if err := NotifyReady(); err != nil {
		t.Fatalf("NotifyReady failed: %v", err)
	}
	if err := NotifyStatus("tracking"); err != nil {
		t.Fatalf("NotifyStatus failed: %v", err)
	}
	if got := WatchdogInterval(); got != 0 {
		t.Fatalf("expected watchdog disabled, got %v", got)
	}
}
