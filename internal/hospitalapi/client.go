// Package hospitalapi is a typed client for the remote hospital REST API.
package hospitalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/patient-portal/internal/availability"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// IdempotencyHeader carries the draft id on the booking POST.
const IdempotencyHeader = "Idempotency-Key"

var tracer = otel.Tracer("patientportal.internal.hospitalapi")

type tokenKey struct{}

// WithToken attaches the patient's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token set by WithToken.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client talks JSON over HTTPS to the hospital API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a client. A zero timeout uses the default.
func New(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Skills(ctx context.Context) ([]Skill, error) {
	var out []Skill
	if err := c.do(ctx, http.MethodGet, "/skills", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Doctors lists doctors, optionally filtered by specialty.
func (c *Client) Doctors(ctx context.Context, skillID string) ([]Doctor, error) {
	q := url.Values{}
	if skillID != "" {
		q.Set("skill_id", skillID)
	}
	var out []Doctor
	if err := c.do(ctx, http.MethodGet, "/doctors", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Availability fetches the doctor's date to slots map.
func (c *Client) Availability(ctx context.Context, doctorID string) (availability.Map, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("hospitalapi: doctor id required")
	}
	out := availability.Map{}
	if err := c.do(ctx, http.MethodGet, "/doctors/"+url.PathEscape(doctorID)+"/availability", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAppointment posts a booking. idempotencyKey is sent so that a
// resubmitted draft is recognised upstream.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest, idempotencyKey string) (*Appointment, error) {
	var headers http.Header
	if idempotencyKey != "" {
		headers = http.Header{IdempotencyHeader: []string{idempotencyKey}}
	}
	var out Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelAppointment(ctx context.Context, appointmentID string) error {
	return c.do(ctx, http.MethodPost, "/appointments/"+url.PathEscape(appointmentID)+"/cancel", nil, struct{}{}, nil, nil)
}

func (c *Client) AppointmentsForUser(ctx context.Context, userID string) ([]Appointment, error) {
	var out []Appointment
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/appointments", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Relatives(ctx context.Context) ([]Relative, error) {
	var out []Relative
	if err := c.do(ctx, http.MethodGet, "/relatives", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddRelative(ctx context.Context, r Relative) (*Relative, error) {
	var out Relative
	if err := c.do(ctx, http.MethodPost, "/relatives", nil, r, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p Profile) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodPut, "/profile", nil, p, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Organization(ctx context.Context) (*Organization, error) {
	var out Organization
	if err := c.do(ctx, http.MethodGet, "/organization", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, nil, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("hospitalapi: login response missing token")
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, nil, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("hospitalapi: register response missing token")
	}
	return &out, nil
}

func (c *Client) TestCheckups(ctx context.Context) ([]TestCheckup, error) {
	var out []TestCheckup
	if err := c.do(ctx, http.MethodGet, "/test-checkups", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BookTest(ctx context.Context, req TestBookingRequest) (*TestBooking, error) {
	var out TestBooking
	if err := c.do(ctx, http.MethodPost, "/test-bookings", nil, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers http.Header, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "hospitalapi."+strings.ToLower(method))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hospitalapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("hospitalapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("hospitalapi: http request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hospitalapi: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		c.logger.Warn("hospital api error", "method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(respBody), out); err != nil {
		return fmt.Errorf("hospitalapi: unmarshal response: %w", err)
	}
	return nil
}

// unwrapData strips a {"data": ...} envelope when present.
func unwrapData(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return body
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return body
	}
	if data, ok := env["data"]; ok && len(data) > 0 && string(data) != "null" {
		return data
	}
	return body
}

// errorMessage pulls "message" or "error" out of an error body, falling back
// to the truncated raw text.
func errorMessage(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
