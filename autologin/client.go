package autologin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// solveWaitSchedule paces /result polling: quick at first, then steady.
// Repeated six times it bounds one attempt at roughly four minutes.
var solveWaitSchedule = []time.Duration{
	2 * time.Second, 3 * time.Second, 4 * time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second,
}

// SolverClient talks to the Turnstile solver API.
type SolverClient struct {
	BaseURL    string
	HTTP       *http.Client
	MaxRetries int
}

// NewSolverClient builds a client with the production retry budget.
func NewSolverClient(baseURL string) *SolverClient {
	return &SolverClient{
		BaseURL:    baseURL,
		HTTP:       &http.Client{Timeout: 20 * time.Second},
		MaxRetries: 3,
	}
}

func (c *SolverClient) getJSON(ctx context.Context, path string, params url.Values) (int, map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	out := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, out, nil
}

// Solve submits a Turnstile task and polls until a token arrives. It retries
// the whole attempt up to MaxRetries times with a random 10-20s backoff.
func (c *SolverClient) Solve(ctx context.Context, targetURL, sitekey string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		token, err := c.solveOnce(ctx, targetURL, sitekey)
		if err == nil {
			return token, nil
		}
		lastErr = err
		log.Printf("[captcha] attempt %d/%d failed: %v", attempt, c.MaxRetries, err)
		if attempt < c.MaxRetries {
			backoff := time.Duration(10+rand.Intn(10)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("all %d captcha attempts failed: %w", c.MaxRetries, lastErr)
}

func (c *SolverClient) solveOnce(ctx context.Context, targetURL, sitekey string) (string, error) {
	code, data, err := c.getJSON(ctx, "/turnstile", url.Values{
		"url":     {targetURL},
		"sitekey": {sitekey},
	})
	if err != nil {
		return "", err
	}
	if code != http.StatusAccepted {
		return "", fmt.Errorf("submit: status %d", code)
	}
	taskID, _ := data["task_id"].(string)
	if taskID == "" {
		return "", fmt.Errorf("submit: no task_id returned")
	}
	log.Printf("[captcha] task started: %s", taskID)

	start := time.Now()
	for cycle := 0; cycle < 6; cycle++ {
		for _, wait := range solveWaitSchedule {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}

			code, data, err := c.getJSON(ctx, "/result", url.Values{"id": {taskID}})
			if err != nil {
				log.Printf("[captcha] poll error: %v", err)
				continue
			}
			switch code {
			case http.StatusAccepted:
				continue
			case http.StatusOK:
				token, _ := data["value"].(string)
				if token == "" {
					return "", fmt.Errorf("solver returned empty token")
				}
				log.Printf("[captcha] solved in %.0fs", time.Since(start).Seconds())
				return token, nil
			case http.StatusNotFound:
				return "", fmt.Errorf("task not found or expired")
			default:
				value, _ := data["value"].(string)
				return "", fmt.Errorf("solver error: %s (status %d)", value, code)
			}
		}
	}
	return "", fmt.Errorf("captcha solving timed out")
}

// PhoneClient talks to the solver's phone verification endpoints.
type PhoneClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewPhoneClient builds a phone client against the solver base URL.
func NewPhoneClient(baseURL string) *PhoneClient {
	return &PhoneClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

// Balance returns the SMS service balance. ok=false means the phone API is
// not configured on the server (503).
func (p *PhoneClient) Balance(ctx context.Context) (balance float64, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/phone/balance", nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable {
		return 0, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("balance: status %d", resp.StatusCode)
	}
	var data struct {
		Balance float64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, false, err
	}
	return data.Balance, true, nil
}

// GetNumber rents a phone number, retrying on rate limits and server errors.
func (p *PhoneClient) GetNumber(ctx context.Context, service, country string) (taskID, number string, err error) {
	const retries = 3
	for attempt := 1; attempt <= retries; attempt++ {
		params := url.Values{"service": {service}, "country": {country}}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/phone/get?"+params.Encode(), nil)
		if rerr != nil {
			return "", "", rerr
		}
		resp, derr := p.HTTP.Do(req)
		if derr != nil {
			err = derr
			time.Sleep(10 * time.Second)
			continue
		}
		var data struct {
			TaskID      string `json:"task_id"`
			PhoneNumber string `json:"phone_number"`
		}
		decErr := json.NewDecoder(resp.Body).Decode(&data)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK && decErr == nil && data.TaskID != "":
			return data.TaskID, data.PhoneNumber, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			err = fmt.Errorf("rate limited")
			time.Sleep(10 * time.Second)
		case resp.StatusCode >= 500:
			err = fmt.Errorf("server error %d", resp.StatusCode)
			time.Sleep(5 * time.Second)
		default:
			return "", "", fmt.Errorf("get number: status %d", resp.StatusCode)
		}
	}
	return "", "", fmt.Errorf("failed to get phone number: %w", err)
}

// WaitForSMS polls every 2s until a code arrives or timeout elapses.
func (p *PhoneClient) WaitForSMS(ctx context.Context, taskID string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		params := url.Values{"task_id": {taskID}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/phone/sms?"+params.Encode(), nil)
		if err != nil {
			return "", err
		}
		resp, err := p.HTTP.Do(req)
		if err != nil {
			time.Sleep(2 * time.Second)
			continue
		}
		var data struct {
			Status  string `json:"status"`
			SMSCode string `json:"sms_code"`
		}
		decErr := json.NewDecoder(resp.Body).Decode(&data)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK && decErr == nil && data.Status == "success" {
			return data.SMSCode, nil
		}
		if resp.StatusCode != http.StatusAccepted {
			return "", fmt.Errorf("sms poll: status %d", resp.StatusCode)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return "", fmt.Errorf("timeout waiting for SMS")
}

// Complete marks the activation finished or cancelled.
func (p *PhoneClient) Complete(ctx context.Context, taskID string, success bool) error {
	params := url.Values{"task_id": {taskID}, "success": {strconv.FormatBool(success)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/phone/complete?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("complete: status %d", resp.StatusCode)
	}
	return nil
}
