package tor

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
)

// fakeControlPort speaks just enough of the control protocol for the client.
type fakeControlPort struct {
	ln       net.Listener
	password string

	mu       sync.Mutex
	commands []string
}

func newFakeControlPort(t *testing.T, password string) *fakeControlPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeControlPort{ln: ln, password: password}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeControlPort) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeControlPort) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		f.mu.Unlock()

		switch {
		case strings.HasPrefix(cmd, "AUTHENTICATE"):
			if f.password != "" && !strings.Contains(cmd, f.password) {
				fmt.Fprint(conn, "515 Authentication failed\r\n")
				return
			}
			fmt.Fprint(conn, "250 OK\r\n")
		case cmd == "SIGNAL NEWNYM":
			fmt.Fprint(conn, "250 OK\r\n")
		case cmd == "QUIT":
			fmt.Fprint(conn, "250 closing connection\r\n")
			return
		default:
			fmt.Fprint(conn, "510 Unrecognized command\r\n")
		}
	}
}

func (f *fakeControlPort) seen(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestControllerNewIdentity(t *testing.T) {
	f := newFakeControlPort(t, "")

	c, err := Dial(f.ln.Addr().String(), "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.minInterval = 0 // no waits in tests
	c.settleDelay = 0

	if err := c.NewIdentity(); err != nil {
		t.Fatalf("new identity: %v", err)
	}
	if !f.seen("SIGNAL NEWNYM") {
		t.Fatal("SIGNAL NEWNYM never reached the control port")
	}
}

func TestControllerPasswordAuth(t *testing.T) {
	f := newFakeControlPort(t, "hunter2")

	if _, err := Dial(f.ln.Addr().String(), "wrong"); err == nil {
		t.Fatal("wrong password should fail to authenticate")
	}

	c, err := Dial(f.ln.Addr().String(), "hunter2")
	if err != nil {
		t.Fatalf("dial with password: %v", err)
	}
	defer c.Close()
	if !f.seen("AUTHENTICATE") {
		t.Fatal("AUTHENTICATE never reached the control port")
	}
}

func TestControllerDialRefused(t *testing.T) {
	if _, err := Dial("127.0.0.1:1", ""); err == nil {
		t.Fatal("dial to a closed port should fail")
	}
}
