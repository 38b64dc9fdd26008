package phone

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const smsActivateURL = "https://api.sms-activate.org/stubs/handler_api.php"

// SMSActivate speaks sms-activate.org's text protocol: colon-delimited
// ACCESS_*/STATUS_* lines instead of JSON.
type SMSActivate struct {
	APIKey  string
	HTTP    *http.Client
	BaseURL string
}

func (s *SMSActivate) Name() string { return "sms-activate" }

func (s *SMSActivate) base() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return smsActivateURL
}

func (s *SMSActivate) call(ctx context.Context, params url.Values) (string, error) {
	params.Set("api_key", s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base()+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sms-activate: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (s *SMSActivate) Balance(ctx context.Context) (float64, error) {
	body, err := s.call(ctx, url.Values{"action": {"getBalance"}})
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(body, "ACCESS_BALANCE:") {
		return 0, fmt.Errorf("sms-activate: unexpected response: %s", body)
	}
	return strconv.ParseFloat(strings.TrimPrefix(body, "ACCESS_BALANCE:"), 64)
}

func (s *SMSActivate) GetNumber(ctx context.Context, service, country string) (*NumberResult, error) {
	body, err := s.call(ctx, url.Values{
		"action":  {"getNumber"},
		"service": {service},
		"country": {country},
	})
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(body, "ACCESS_NUMBER:") {
		return nil, fmt.Errorf("sms-activate: %s", body)
	}
	parts := strings.SplitN(body, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("sms-activate: malformed number response: %s", body)
	}
	return &NumberResult{ActivationID: parts[1], PhoneNumber: parts[2]}, nil
}

func (s *SMSActivate) GetSMS(ctx context.Context, activationID string) (*SMSResult, error) {
	body, err := s.call(ctx, url.Values{
		"action": {"getStatus"},
		"id":     {activationID},
	})
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(body, "STATUS_OK:"):
		return &SMSResult{Code: strings.TrimPrefix(body, "STATUS_OK:")}, nil
	case body == "STATUS_WAIT_CODE":
		return &SMSResult{Waiting: true}, nil
	default:
		return nil, fmt.Errorf("sms-activate: %s", body)
	}
}

func (s *SMSActivate) SetStatus(ctx context.Context, activationID, status string) error {
	body, err := s.call(ctx, url.Values{
		"action": {"setStatus"},
		"status": {status},
		"id":     {activationID},
	})
	if err != nil {
		return err
	}
	if body != "ACCESS_ACTIVATION" && !strings.HasPrefix(body, "ACCESS_") {
		return fmt.Errorf("sms-activate: set status failed: %s", body)
	}
	return nil
}
