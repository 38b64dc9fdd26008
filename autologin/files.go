package autologin

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Credential is one email/password pair from emails.txt.
type Credential struct {
	Email    string
	Password string
}

// ParseEmails reads "email|password" lines. Blank lines, # comments, and
// lines without both fields are skipped with a log line.
func ParseEmails(path string) ([]Credential, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pairs []Credential
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") || !strings.Contains(s, "|") {
			continue
		}
		email, password, _ := strings.Cut(s, "|")
		email = strings.TrimSpace(email)
		password = strings.TrimSpace(password)
		if email == "" || password == "" {
			log.Printf("[files] skipping empty credentials on line %d", lineNum)
			continue
		}
		pairs = append(pairs, Credential{Email: email, Password: password})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no valid credentials in %s", path)
	}
	log.Printf("[files] loaded %d email/password pairs", len(pairs))
	return pairs, nil
}

// LoadProxies reads host:port lines and returns http:// proxy URLs.
// Comments and malformed lines are skipped.
func LoadProxies(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var proxies []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			log.Printf("[files] skipping invalid proxy line: %s", s)
			continue
		}
		proxies = append(proxies, "http://"+s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(proxies) == 0 {
		return nil, fmt.Errorf("no valid proxies in %s", path)
	}
	log.Printf("[files] loaded %d proxies", len(proxies))
	return proxies, nil
}

// ProxyCycle hands out proxies round-robin.
type ProxyCycle struct {
	mu      sync.Mutex
	proxies []string
	next    int
}

// NewProxyCycle builds a cycle over the given proxies.
func NewProxyCycle(proxies []string) *ProxyCycle {
	return &ProxyCycle{proxies: proxies}
}

// Next returns the next proxy URL, or "" when the cycle is empty.
func (c *ProxyCycle) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.proxies) == 0 {
		return ""
	}
	p := c.proxies[c.next%len(c.proxies)]
	c.next++
	return p
}
