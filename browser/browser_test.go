package browser

import (
	"strings"
	"testing"
)

func TestTurnstilePage(t *testing.T) {
	tests := []struct {
		name    string
		sitekey string
		action  string
		cdata   string
		want    []string
		notWant []string
	}{
		{
			name:    "sitekey only",
			sitekey: "0xKEY",
			want:    []string{`data-sitekey="0xKEY"`, "challenges.cloudflare.com/turnstile"},
			notWant: []string{"data-action", "data-cdata"},
		},
		{
			name:    "with action and cdata",
			sitekey: "0xKEY",
			action:  "login",
			cdata:   "blob",
			want:    []string{`data-action="login"`, `data-cdata="blob"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := TurnstilePage(tt.sitekey, tt.action, tt.cdata)
			for _, w := range tt.want {
				if !strings.Contains(html, w) {
					t.Errorf("missing %q in rendered page", w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(html, nw) {
					t.Errorf("unexpected %q in rendered page", nw)
				}
			}
		})
	}
}
