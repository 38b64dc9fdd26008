package solver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Arknight38/wplacer-autologin/phone"
)

// Server exposes the solver and phone APIs over HTTP.
type Server struct {
	solver *Solver
	phones *phone.Service // nil when no phone API is configured
	reg    *prometheus.Registry
}

// NewServer wires the HTTP facade. phones and metricsReg may be nil.
func NewServer(solver *Solver, phones *phone.Service, metricsReg *prometheus.Registry) *Server {
	return &Server{solver: solver, phones: phones, reg: metricsReg}
}

// Routes builds the handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/turnstile", s.handleTurnstile)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/phone/balance", s.handlePhoneBalance)
	mux.HandleFunc("/phone/get", s.handlePhoneGet)
	mux.HandleFunc("/phone/sms", s.handlePhoneSMS)
	mux.HandleFunc("/phone/complete", s.handlePhoneComplete)
	if s.reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleTurnstile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url := strings.TrimSpace(q.Get("url"))
	sitekey := strings.TrimSpace(q.Get("sitekey"))
	if url == "" || sitekey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "'url' and 'sitekey' parameters are required and cannot be empty",
		})
		return
	}

	id, err := s.solver.Submit(context.Background(), SolveRequest{
		URL:     url,
		Sitekey: sitekey,
		Action:  q.Get("action"),
		Cdata:   q.Get("cdata"),
	})
	if err != nil {
		if errors.Is(err, ErrAtCapacity) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"status": "error",
				"error":  "Server at maximum capacity, please try again later",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	log.Printf("[http] new turnstile task %s url=%s", id, url)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "accepted"})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "Missing or empty task id parameter",
		})
		return
	}

	res, ok := s.solver.Result(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "Invalid task id or task expired",
		})
		return
	}

	if res.Status == StatusProcess {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":       res.Status,
			"message":      "solving captcha",
			"elapsed_time": round3(time.Since(res.StartTime).Seconds()),
		})
		return
	}

	code := http.StatusInternalServerError
	switch {
	case res.Status == StatusSuccess:
		code = http.StatusOK
	case res.Value == ValueTimeout:
		code = http.StatusRequestTimeout
	case res.Value == ValueCaptchaFail:
		code = http.StatusUnprocessableEntity
	}

	body := map[string]any{
		"status":       res.Status,
		"elapsed_time": round3(res.ElapsedTime),
	}
	if res.Value != "" {
		body["value"] = res.Value
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	writeJSON(w, code, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	inFlight, maxTasks, pending, available := s.solver.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                    "running",
		"current_tasks":             inFlight,
		"max_tasks":                 maxTasks,
		"available_pages":           available,
		"pending_turnstile_results": pending,
		"phone_api_enabled":         s.phones != nil,
	})
}

func (s *Server) requirePhone(w http.ResponseWriter) bool {
	if s.phones == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Phone API not configured",
		})
		return false
	}
	return true
}

func (s *Server) handlePhoneBalance(w http.ResponseWriter, r *http.Request) {
	if !s.requirePhone(w) {
		return
	}
	balance, err := s.phones.Balance(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance, "status": "success"})
}

func (s *Server) handlePhoneGet(w http.ResponseWriter, r *http.Request) {
	if !s.requirePhone(w) {
		return
	}
	service := strings.TrimSpace(r.URL.Query().Get("service"))
	country := r.URL.Query().Get("country")
	if country == "" {
		country = "0"
	}
	if service == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "Service parameter cannot be empty",
		})
		return
	}
	taskID, number, err := s.phones.GetNumber(r.Context(), service, country)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id":      taskID,
		"phone_number": number,
		"status":       "success",
	})
}

func (s *Server) handlePhoneSMS(w http.ResponseWriter, r *http.Request) {
	if !s.requirePhone(w) {
		return
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("task_id"))
	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Missing task_id"})
		return
	}
	res, number, err := s.phones.GetSMS(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, phone.ErrUnknownActivation) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"status":  "error",
				"message": "Invalid task_id or task expired",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if res.Waiting {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "waiting", "message": "SMS not received yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sms_code":     res.Code,
		"phone_number": number,
		"status":       "success",
	})
}

func (s *Server) handlePhoneComplete(w http.ResponseWriter, r *http.Request) {
	if !s.requirePhone(w) {
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"status": "error", "message": "POST required"})
		return
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("task_id"))
	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Missing task_id"})
		return
	}
	success := r.URL.Query().Get("success") != "false"
	if err := s.phones.Complete(r.Context(), taskID, success); err != nil {
		if errors.Is(err, phone.ErrUnknownActivation) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"status":  "error",
				"message": "Invalid task_id or task expired",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	action := "completed"
	if !success {
		action = "cancelled"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Verification " + action})
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Printf("write json error: %v", err)
	}
}
