package autologin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Arknight38/wplacer-autologin/browser"
)

const consentButtonXPath = "xpath=/html/body/div[2]/div[1]/div[2]/c-wiz/main/div[3]/div/div/div[2]/div/div/button"

var phoneSelectors = []string{
	`input[type="tel"]`,
	`input[placeholder*="phone"]`, `input[placeholder*="Phone"]`,
	`input[id*="phone"]`, `input[name*="phone"]`,
	`input[aria-label*="phone"]`, `input[aria-label*="Phone"]`,
}

var nextButtonSelectors = []string{
	`button:has-text("Next")`, `button:has-text("Continue")`,
	`button:has-text("Send")`, `input[type="submit"]`,
	`#identifierNext`, `[data-continue-type="next"]`, `button[type="submit"]`,
}

var codeSelectors = []string{
	`input[type="text"][maxlength="6"]`, `input[type="text"][maxlength="8"]`,
	`input[placeholder*="code"]`, `input[placeholder*="Code"]`,
	`input[id*="code"]`, `input[name*="code"]`,
	`input[aria-label*="code"]`, `input[aria-label*="Code"]`,
}

var verifyButtonSelectors = []string{
	`button:has-text("Verify")`, `button:has-text("Continue")`,
	`button:has-text("Next")`, `input[type="submit"]`, `button[type="submit"]`,
}

// LoginFlow performs one login attempt end to end.
type LoginFlow struct {
	Engine   browser.Engine
	Solver   *SolverClient
	Phone    *PhoneClient
	Proxies  *ProxyCycle
	TorSocks string

	BackendURL    string
	Sitekey       string
	CookieTimeout time.Duration
	SMSTimeout    time.Duration
}

// LoginOutcome is the terminal result of one attempt.
type LoginOutcome struct {
	Status string // ok | phone_needed
	Reason string
	Cookie *browser.Cookie
}

// errPhoneNeeded marks attempts that stalled on phone verification; the
// account stays recoverable rather than failed.
type errPhoneNeeded struct{ reason string }

func (e *errPhoneNeeded) Error() string { return "phone verification needed: " + e.reason }

// Run performs the full flow: solve captcha, follow the backend redirect to
// the Google login URL, drive the browser through sign-in, and capture the
// session cookie.
func (f *LoginFlow) Run(ctx context.Context, email, password string) (*LoginOutcome, error) {
	log.Printf("[login] solving captcha for %s", email)
	token, err := f.Solver.Solve(ctx, f.BackendURL, f.Sitekey)
	if err != nil {
		return nil, fmt.Errorf("captcha solving failed: %w", err)
	}

	loginURL, err := f.resolveGoogleLoginURL(ctx, token)
	if err != nil {
		return nil, err
	}

	bctx, err := f.Engine.NewContext(browser.ContextOptions{
		Proxy: &browser.Proxy{Server: "socks5://" + f.TorSocks},
	})
	if err != nil {
		return nil, fmt.Errorf("browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("browser page: %w", err)
	}
	defer page.Close()

	sleepJitter(2, 4)
	log.Printf("[login] opening Google login page")
	if err := page.Goto(loginURL, 90*time.Second); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}

	if err := f.enterCredentials(page, email, password); err != nil {
		return nil, err
	}

	sleepJitter(3, 5)
	if err := f.handlePhoneVerification(ctx, page); err != nil {
		var pn *errPhoneNeeded
		if errors.As(err, &pn) {
			return &LoginOutcome{Status: AccountPhoneNeeded, Reason: pn.reason}, nil
		}
		return nil, err
	}

	sleepJitter(2, 4)
	f.clickConsent(page, 20*time.Second)

	log.Printf("[login] waiting for authentication cookie")
	cookie := pollCookie(bctx, "j", f.CookieTimeout)
	if cookie == nil {
		return nil, fmt.Errorf("authentication cookie not found")
	}
	return &LoginOutcome{Status: AccountOK, Cookie: cookie}, nil
}

// resolveGoogleLoginURL exchanges the captcha token for the Google sign-in
// URL by following the backend's redirects through the HTTP proxy pool.
func (f *LoginFlow) resolveGoogleLoginURL(ctx context.Context, token string) (string, error) {
	client := &http.Client{Timeout: 20 * time.Second}
	if p := f.Proxies.Next(); p != "" {
		proxyURL, err := url.Parse(p)
		if err == nil {
			client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	backendURL := strings.TrimRight(f.BackendURL, "/") + "/auth/google?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backendURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get Google login URL: %w", err)
	}
	defer resp.Body.Close()
	final := resp.Request.URL.String()
	log.Printf("[login] got Google login URL")
	return final, nil
}

func (f *LoginFlow) enterCredentials(page browser.Page, email, password string) error {
	log.Printf("[login] entering email")
	fr, err := findLoginFrame(page, `input[type="email"]`, 30*time.Second)
	if err != nil {
		return err
	}
	if err := fr.Fill(`input[type="email"]`, email, 10*time.Second); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	sleepJitter(1, 2)
	if err := fr.Click("#identifierNext", 10*time.Second); err != nil {
		return fmt.Errorf("submit email: %w", err)
	}

	sleepJitter(3, 5)
	log.Printf("[login] entering password")
	fr, err = findLoginFrame(page, `input[type="password"]`, 30*time.Second)
	if err != nil {
		return err
	}
	if err := fr.Fill(`input[type="password"]`, password, 10*time.Second); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	sleepJitter(1, 2)
	if err := fr.Click("#passwordNext", 10*time.Second); err != nil {
		return fmt.Errorf("submit password: %w", err)
	}
	return nil
}

// handlePhoneVerification detects the phone challenge and, when an SMS
// service is available, completes it automatically. Anything it cannot
// finish comes back as errPhoneNeeded.
func (f *LoginFlow) handlePhoneVerification(ctx context.Context, page browser.Page) error {
	var phoneSel string
	for _, sel := range phoneSelectors {
		if visible, _ := page.IsVisible(sel, 3*time.Second); visible {
			phoneSel = sel
			break
		}
	}
	if phoneSel == "" {
		return nil
	}
	log.Printf("[login] phone verification required")

	if f.Phone == nil {
		return &errPhoneNeeded{reason: "no_phone_service"}
	}
	balance, ok, err := f.Phone.Balance(ctx)
	if err != nil || !ok || balance <= 0 {
		return &errPhoneNeeded{reason: "no_phone_service"}
	}

	taskID, number, err := f.Phone.GetNumber(ctx, "go", "1")
	if err != nil {
		return &errPhoneNeeded{reason: "phone_number_failed"}
	}

	if err := page.Fill(phoneSel, number, 10*time.Second); err != nil {
		_ = f.Phone.Complete(ctx, taskID, false)
		return &errPhoneNeeded{reason: "phone_input_failed"}
	}
	sleepJitter(1, 2)
	if !clickFirst(page, nextButtonSelectors, 1500*time.Millisecond) {
		_ = f.Phone.Complete(ctx, taskID, false)
		return &errPhoneNeeded{reason: "next_button_not_found"}
	}

	code, err := f.Phone.WaitForSMS(ctx, taskID, f.SMSTimeout)
	if err != nil {
		_ = f.Phone.Complete(ctx, taskID, false)
		return &errPhoneNeeded{reason: "sms_timeout"}
	}

	time.Sleep(3 * time.Second)
	var codeSel string
	for _, sel := range codeSelectors {
		if visible, _ := page.IsVisible(sel, 10*time.Second); visible {
			codeSel = sel
			break
		}
	}
	if codeSel == "" {
		_ = f.Phone.Complete(ctx, taskID, false)
		return &errPhoneNeeded{reason: "code_input_not_found"}
	}
	if err := page.Fill(codeSel, code, 10*time.Second); err != nil {
		_ = f.Phone.Complete(ctx, taskID, false)
		return &errPhoneNeeded{reason: "code_input_failed"}
	}
	sleepJitter(1, 2)
	clickFirst(page, verifyButtonSelectors, 1500*time.Millisecond)

	if err := f.Phone.Complete(ctx, taskID, true); err != nil {
		log.Printf("[login] complete verification: %v", err)
	}
	time.Sleep(5 * time.Second)
	log.Printf("[login] phone verification completed")
	return nil
}

// clickConsent presses the data-sharing consent button when it appears.
// Its absence is normal.
func (f *LoginFlow) clickConsent(page browser.Page, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := page.Click(consentButtonXPath, time.Second); err == nil {
			log.Printf("[login] consent button clicked")
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// findLoginFrame scans the page's frames for one containing the selector.
// A recaptcha or challenge frame aborts the attempt.
func findLoginFrame(page browser.Page, selector string, timeout time.Duration) (browser.Frame, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, fr := range page.Frames() {
			u := strings.ToLower(fr.URL())
			if strings.Contains(u, "recaptcha") || strings.Contains(u, "challenge") {
				return nil, fmt.Errorf("captcha shown during login")
			}
			if n, err := fr.Count(selector); err == nil && n > 0 {
				return fr, nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("login frame with %s not found", selector)
}

// pollCookie waits for the named cookie to appear in the context.
func pollCookie(bctx browser.Context, name string, timeout time.Duration) *browser.Cookie {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		cookies, err := bctx.Cookies()
		if err == nil {
			for i := range cookies {
				if cookies[i].Name == name {
					return &cookies[i]
				}
			}
		}
		time.Sleep(time.Second)
	}
	return nil
}

func clickFirst(page browser.Page, selectors []string, timeout time.Duration) bool {
	for _, sel := range selectors {
		if err := page.Click(sel, timeout); err == nil {
			return true
		}
	}
	return false
}

func sleepJitter(minSec, maxSec float64) {
	time.Sleep(time.Duration((minSec + rand.Float64()*(maxSec-minSec)) * float64(time.Second)))
}
