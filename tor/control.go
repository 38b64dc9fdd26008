// Package tor implements the small slice of the Tor control protocol the
// login driver needs: authenticate and request a new circuit identity.
package tor

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// Controller is a connection to a Tor control port. Methods are safe for
// concurrent use; commands are serialized on the single connection.
type Controller struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader

	lastNewnym time.Time
	// Tor rate-limits NEWNYM to roughly one per 10 seconds.
	minInterval time.Duration
	// circuits take a moment to establish after NEWNYM
	settleDelay time.Duration
}

// Dial connects to the control port and authenticates. password may be
// empty when the port uses no auth or cookie auth with a null cookie.
func Dial(addr, password string) (*Controller, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("tor control dial: %w", err)
	}
	c := &Controller{
		conn:        conn,
		r:           bufio.NewReader(conn),
		minInterval: 10 * time.Second,
		settleDelay: 2 * time.Second,
	}
	if err := c.authenticate(password); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Controller) authenticate(password string) error {
	cmd := "AUTHENTICATE"
	if password != "" {
		cmd = fmt.Sprintf("AUTHENTICATE %q", password)
	}
	reply, err := c.roundTrip(cmd)
	if err != nil {
		return fmt.Errorf("tor authenticate: %w", err)
	}
	if !strings.HasPrefix(reply, "250") {
		return fmt.Errorf("tor authenticate: %s", reply)
	}
	return nil
}

// NewIdentity asks Tor for a fresh circuit. It waits out the local rate
// limit, sends SIGNAL NEWNYM, and gives Tor a moment to build circuits.
func (c *Controller) NewIdentity() error {
	c.mu.Lock()
	if wait := c.minInterval - time.Since(c.lastNewnym); !c.lastNewnym.IsZero() && wait > 0 {
		log.Printf("[tor] rate limit: waiting %.0fs before NEWNYM", wait.Seconds())
		c.mu.Unlock()
		time.Sleep(wait)
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	reply, err := c.roundTrip("SIGNAL NEWNYM")
	if err != nil {
		return fmt.Errorf("tor newnym: %w", err)
	}
	if !strings.HasPrefix(reply, "250") {
		return fmt.Errorf("tor newnym: %s", reply)
	}
	c.lastNewnym = time.Now()
	log.Printf("[tor] new identity requested")
	time.Sleep(c.settleDelay)
	return nil
}

// roundTrip sends one command and reads the full reply. Callers other than
// NewIdentity must hold c.mu.
func (c *Controller) roundTrip(cmd string) (string, error) {
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", cmd); err != nil {
		return "", err
	}
	var last string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return "", err
		}
		last = strings.TrimRight(line, "\r\n")
		// mid-reply lines use "250-" or "250+"; "250 " ends the reply
		if len(last) >= 4 && last[3] == ' ' {
			return last, nil
		}
		if len(last) < 4 {
			return last, nil
		}
	}
}

// Close sends QUIT and closes the connection.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.roundTrip("QUIT")
	return c.conn.Close()
}
