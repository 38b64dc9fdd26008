package phone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const smsManURL = "http://api.sms-man.ru/control"

// SMSMan speaks sms-man.ru's control API: token in the query string, JSON
// bodies, errors as error_code fields on a 200.
type SMSMan struct {
	APIKey  string
	HTTP    *http.Client
	BaseURL string
}

func (s *SMSMan) Name() string { return "sms-man" }

func (s *SMSMan) base() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return smsManURL
}

func (s *SMSMan) call(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("token", s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base()+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms-man: %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *SMSMan) Balance(ctx context.Context) (float64, error) {
	var res struct {
		Balance   string `json:"balance"`
		ErrorCode string `json:"error_code"`
	}
	if err := s.call(ctx, "/get-balance", url.Values{}, &res); err != nil {
		return 0, err
	}
	if res.ErrorCode != "" {
		return 0, fmt.Errorf("sms-man: %s", res.ErrorCode)
	}
	return strconv.ParseFloat(res.Balance, 64)
}

func (s *SMSMan) GetNumber(ctx context.Context, service, country string) (*NumberResult, error) {
	var res struct {
		RequestID json.Number `json:"request_id"`
		Number    string      `json:"number"`
		ErrorCode string      `json:"error_code"`
	}
	err := s.call(ctx, "/get-number", url.Values{
		"application_id": {service},
		"country_id":     {country},
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.ErrorCode != "" {
		return nil, fmt.Errorf("sms-man: %s", res.ErrorCode)
	}
	return &NumberResult{ActivationID: res.RequestID.String(), PhoneNumber: res.Number}, nil
}

func (s *SMSMan) GetSMS(ctx context.Context, activationID string) (*SMSResult, error) {
	var res struct {
		SMSCode   string `json:"sms_code"`
		ErrorCode string `json:"error_code"`
	}
	err := s.call(ctx, "/get-sms", url.Values{"request_id": {activationID}}, &res)
	if err != nil {
		return nil, err
	}
	if res.ErrorCode == "wait_sms" {
		return &SMSResult{Waiting: true}, nil
	}
	if res.ErrorCode != "" {
		return nil, fmt.Errorf("sms-man: %s", res.ErrorCode)
	}
	return &SMSResult{Code: res.SMSCode}, nil
}

func (s *SMSMan) SetStatus(ctx context.Context, activationID, status string) error {
	verb := "used"
	if status == StatusCancel {
		verb = "reject"
	}
	var res struct {
		Success   bool   `json:"success"`
		ErrorCode string `json:"error_code"`
	}
	err := s.call(ctx, "/set-status", url.Values{
		"request_id": {activationID},
		"status":     {verb},
	}, &res)
	if err != nil {
		return err
	}
	if res.ErrorCode != "" {
		return fmt.Errorf("sms-man: %s", res.ErrorCode)
	}
	return nil
}
