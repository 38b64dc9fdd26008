package phone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

const fiveSimURL = "https://5sim.net/v1"

// FiveSim speaks 5sim.net's JSON API with Bearer auth.
type FiveSim struct {
	APIKey  string
	HTTP    *http.Client
	BaseURL string
}

func (f *FiveSim) Name() string { return "5sim" }

func (f *FiveSim) base() string {
	if f.BaseURL != "" {
		return f.BaseURL
	}
	return fiveSimURL
}

func (f *FiveSim) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, f.base()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.APIKey)
	req.Header.Set("Accept", "application/json")
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("5sim: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (f *FiveSim) Balance(ctx context.Context) (float64, error) {
	var profile struct {
		Balance float64 `json:"balance"`
	}
	if err := f.do(ctx, http.MethodGet, "/user/profile", &profile); err != nil {
		return 0, err
	}
	return profile.Balance, nil
}

func (f *FiveSim) GetNumber(ctx context.Context, service, country string) (*NumberResult, error) {
	if country == "" || country == "0" {
		country = "any"
	}
	var order struct {
		ID    int64  `json:"id"`
		Phone string `json:"phone"`
	}
	path := fmt.Sprintf("/user/buy/activation/%s/%s", country, service)
	if err := f.do(ctx, http.MethodPost, path, &order); err != nil {
		return nil, err
	}
	return &NumberResult{
		ActivationID: strconv.FormatInt(order.ID, 10),
		PhoneNumber:  order.Phone,
	}, nil
}

func (f *FiveSim) GetSMS(ctx context.Context, activationID string) (*SMSResult, error) {
	var check struct {
		SMS []struct {
			Code string `json:"code"`
		} `json:"sms"`
	}
	if err := f.do(ctx, http.MethodGet, "/user/check/"+activationID, &check); err != nil {
		return nil, err
	}
	if len(check.SMS) == 0 {
		return &SMSResult{Waiting: true}, nil
	}
	return &SMSResult{Code: check.SMS[0].Code}, nil
}

func (f *FiveSim) SetStatus(ctx context.Context, activationID, status string) error {
	verb := "finish"
	if status == StatusCancel {
		verb = "cancel"
	}
	return f.do(ctx, http.MethodPatch, fmt.Sprintf("/user/%s/%s", verb, activationID), nil)
}
