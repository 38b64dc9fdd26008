// Package phone integrates SMS activation providers for phone verification.
package phone

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Activation status codes in sms-activate convention; other providers map
// them onto their own verbs.
const (
	StatusComplete = "6"
	StatusCancel   = "8"
)

// NumberResult is a rented phone number.
type NumberResult struct {
	ActivationID string
	PhoneNumber  string
}

// SMSResult is one poll of an activation. Waiting means no code has arrived
// yet and the caller should poll again; it is not an error.
type SMSResult struct {
	Code    string
	Waiting bool
}

// Provider normalizes an SMS activation API.
type Provider interface {
	Name() string
	Balance(ctx context.Context) (float64, error)
	GetNumber(ctx context.Context, service, country string) (*NumberResult, error)
	GetSMS(ctx context.Context, activationID string) (*SMSResult, error)
	SetStatus(ctx context.Context, activationID, status string) error
}

// NewProvider builds the named provider.
func NewProvider(name, apiKey string) (Provider, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	switch name {
	case "sms-activate":
		return &SMSActivate{APIKey: apiKey, HTTP: client}, nil
	case "5sim":
		return &FiveSim{APIKey: apiKey, HTTP: client}, nil
	case "sms-man":
		return &SMSMan{APIKey: apiKey, HTTP: client}, nil
	default:
		return nil, fmt.Errorf("unsupported phone provider: %s", name)
	}
}

// activation is a rented number tracked by the service.
type activation struct {
	ActivationID string
	PhoneNumber  string
	Service      string
	Start        time.Time
}

// Service fronts a provider and tracks activations by task id so HTTP
// clients never see raw provider ids.
type Service struct {
	provider Provider

	mu          sync.Mutex
	activations map[string]*activation
	maxAge      time.Duration
}

// ErrUnknownActivation means the task id was never issued or already
// completed.
var ErrUnknownActivation = errors.New("unknown activation")

// NewService wraps provider with activation tracking.
func NewService(provider Provider) *Service {
	return &Service{
		provider:    provider,
		activations: make(map[string]*activation),
		maxAge:      time.Hour,
	}
}

// ProviderName reports which provider backs the service.
func (s *Service) ProviderName() string { return s.provider.Name() }

// Balance proxies the provider balance call.
func (s *Service) Balance(ctx context.Context) (float64, error) {
	return s.provider.Balance(ctx)
}

// GetNumber rents a number and returns its task id and phone number.
func (s *Service) GetNumber(ctx context.Context, service, country string) (taskID, phone string, err error) {
	num, err := s.provider.GetNumber(ctx, service, country)
	if err != nil {
		return "", "", err
	}
	taskID = uuid.NewString()
	s.mu.Lock()
	s.activations[taskID] = &activation{
		ActivationID: num.ActivationID,
		PhoneNumber:  num.PhoneNumber,
		Service:      service,
		Start:        time.Now(),
	}
	s.mu.Unlock()
	log.Printf("[phone] rented %s (task %s)", num.PhoneNumber, taskID)
	return taskID, num.PhoneNumber, nil
}

// GetSMS polls the provider for the activation behind taskID.
func (s *Service) GetSMS(ctx context.Context, taskID string) (res *SMSResult, phone string, err error) {
	s.mu.Lock()
	act, ok := s.activations[taskID]
	s.mu.Unlock()
	if !ok {
		return nil, "", ErrUnknownActivation
	}
	res, err = s.provider.GetSMS(ctx, act.ActivationID)
	if err != nil {
		return nil, "", err
	}
	return res, act.PhoneNumber, nil
}

// Complete finishes or cancels the activation and drops it from tracking.
func (s *Service) Complete(ctx context.Context, taskID string, success bool) error {
	s.mu.Lock()
	act, ok := s.activations[taskID]
	if ok {
		delete(s.activations, taskID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrUnknownActivation
	}
	status := StatusComplete
	if !success {
		status = StatusCancel
	}
	if err := s.provider.SetStatus(ctx, act.ActivationID, status); err != nil {
		log.Printf("[phone] set status %s on %s: %v", status, act.ActivationID, err)
		return err
	}
	return nil
}

// Sweep drops activations older than the retention window; rides on the
// solver maintenance tick.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, act := range s.activations {
		if now.Sub(act.Start) > s.maxAge {
			delete(s.activations, id)
			removed++
		}
	}
	return removed
}
