package autologin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testPairs() []Credential {
	return []Credential{
		{Email: "a@example.com", Password: "pw-a"},
		{Email: "b@example.com", Password: "pw-b"},
	}
}

func TestStateInitAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	st := LoadOrInitState(path, testPairs(), StateConfig{SocksAddr: "127.0.0.1:9050"})
	if len(st.Accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(st.Accounts))
	}
	if st.Accounts[0].Status != AccountPending {
		t.Fatalf("initial status = %s, want pending", st.Accounts[0].Status)
	}

	if err := st.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	// no temp file left behind
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file should be gone after save")
	}

	loaded := LoadOrInitState(path, nil, StateConfig{})
	if len(loaded.Accounts) != 2 || loaded.Accounts[1].Email != "b@example.com" {
		t.Fatalf("reloaded state lost accounts: %+v", loaded.Accounts)
	}
}

func TestStateSaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	st := LoadOrInitState(path, testPairs(), StateConfig{})
	if err := st.Save(); err != nil {
		t.Fatalf("first save: %v", err)
	}

	st.Accounts[0].Status = AccountOK
	if err := st.Save(); err != nil {
		t.Fatalf("second save: %v", err)
	}

	// backup holds the previous version
	backup, err := os.ReadFile(path + ".backup")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	var old State
	if err := json.Unmarshal(backup, &old); err != nil {
		t.Fatalf("parse backup: %v", err)
	}
	if old.Accounts[0].Status != AccountPending {
		t.Fatalf("backup status = %s, want the pre-save pending", old.Accounts[0].Status)
	}

	current := LoadOrInitState(path, nil, StateConfig{})
	if current.Accounts[0].Status != AccountOK {
		t.Fatalf("live status = %s, want ok", current.Accounts[0].Status)
	}
}

func TestStateCorruptFileFallsBackToPairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := LoadOrInitState(path, testPairs(), StateConfig{})
	if len(st.Accounts) != 2 {
		t.Fatalf("accounts = %d, want fresh state from pairs", len(st.Accounts))
	}
}

func TestPendingIndexes(t *testing.T) {
	st := LoadOrInitState(filepath.Join(t.TempDir(), "data.json"), testPairs(), StateConfig{})
	st.Accounts[0].Status = AccountOK

	got := st.PendingIndexes(AccountPending)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("pending = %v, want [1]", got)
	}

	got = st.PendingIndexes(AccountPending, AccountOK)
	if len(got) != 2 {
		t.Fatalf("pending+ok = %v, want both", got)
	}
}

func TestParseEmails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emails.txt")
	content := `# comment line
a@example.com|secret1

malformed-line-without-pipe
 b@example.com | secret2
|missing-email
c@example.com|
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pairs, err := ParseEmails(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d (%v), want 2", len(pairs), pairs)
	}
	if pairs[1].Email != "b@example.com" || pairs[1].Password != "secret2" {
		t.Fatalf("pair[1] = %+v, want trimmed b@example.com", pairs[1])
	}
}

func TestParseEmailsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emails.txt")
	if err := os.WriteFile(path, []byte("# only comments\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseEmails(path); err == nil {
		t.Fatal("file without credentials should error")
	}
}

func TestLoadProxiesAndCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := `# proxies
10.0.0.1:8080
bad-line
10.0.0.2:8080
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	proxies, err := LoadProxies(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(proxies) != 2 || proxies[0] != "http://10.0.0.1:8080" {
		t.Fatalf("proxies = %v", proxies)
	}

	cycle := NewProxyCycle(proxies)
	got := []string{cycle.Next(), cycle.Next(), cycle.Next()}
	want := []string{proxies[0], proxies[1], proxies[0]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cycle[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
