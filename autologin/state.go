// Package autologin drives bulk account logins: captcha solve, Google
// sign-in via a browser over Tor, phone verification, and result delivery.
package autologin

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Account statuses in the state file.
const (
	AccountPending     = "pending"
	AccountOK          = "ok"
	AccountError       = "error"
	AccountPhoneNeeded = "phone_needed"
)

const stateVersion = 2

// LoginResult records the cookie captured for a successful account.
type LoginResult struct {
	Domain         string  `json:"domain"`
	Value          string  `json:"value"`
	CompletionTime float64 `json:"completion_time"`
	Timestamp      string  `json:"timestamp"`
}

// Account is one credential pair and its progress.
type Account struct {
	Email       string       `json:"email"`
	Password    string       `json:"password"`
	Status      string       `json:"status"`
	Tries       int          `json:"tries"`
	LastError   string       `json:"last_error"`
	LastAttempt string       `json:"last_attempt,omitempty"`
	Result      *LoginResult `json:"result,omitempty"`
}

// Statistics are running totals across the whole run.
type Statistics struct {
	TotalProcessed int `json:"total_processed"`
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	PhoneNeeded    int `json:"phone_needed"`
}

// StateConfig snapshots the network settings the state was created under.
type StateConfig struct {
	SocksAddr   string `json:"socks_addr"`
	ControlAddr string `json:"control_addr"`
}

// State is the persisted progress file.
type State struct {
	Version    int         `json:"version"`
	Created    string      `json:"created"`
	Config     StateConfig `json:"config"`
	Cursor     struct {
		NextIndex int `json:"next_index"`
	} `json:"cursor"`
	Statistics Statistics `json:"statistics"`
	Accounts   []Account  `json:"accounts"`

	path string
}

// LoadOrInitState loads the state file, or builds a fresh state from the
// credential pairs when the file is missing or unreadable.
func LoadOrInitState(path string, pairs []Credential, cfg StateConfig) *State {
	if data, err := os.ReadFile(path); err == nil {
		var st State
		if err := json.Unmarshal(data, &st); err == nil {
			st.path = path
			return &st
		}
		log.Printf("[state] could not parse %s, creating new state", path)
	}

	st := &State{
		Version: stateVersion,
		Created: time.Now().Format(time.RFC3339),
		Config:  cfg,
		path:    path,
	}
	st.Accounts = make([]Account, 0, len(pairs))
	for _, p := range pairs {
		st.Accounts = append(st.Accounts, Account{
			Email:    p.Email,
			Password: p.Password,
			Status:   AccountPending,
		})
	}
	return st
}

// Save writes the state atomically: a temp file replaces the live file, and
// the previous version survives as a single rolling .backup.
func (s *State) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.path+".backup"); err != nil {
			log.Printf("[state] backup failed: %v", err)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// PendingIndexes lists accounts whose status matches any of the given
// statuses, in file order.
func (s *State) PendingIndexes(statuses ...string) []int {
	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []int
	for i := range s.Accounts {
		status := s.Accounts[i].Status
		if status == "" {
			status = AccountPending
		}
		if want[status] {
			out = append(out, i)
		}
	}
	return out
}
