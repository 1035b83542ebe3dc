package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/resilience"
)

// Client talks to the clinic backend's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *resilience.RetryConfig
}

// NewClient creates a booking client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.BookingAPIURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.BookingAPITimeout) * time.Second,
		},
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

// NewClientWithBaseURL is used by tests against httptest servers.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		retry:      resilience.DefaultRetryConfig(),
	}
}

type apiError struct {
	Detail string `json:"detail"`
}

// getJSON performs a GET with transient-error retries. Reads are idempotent
// so retrying is safe; writes go through doJSON without retries.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return resilience.Retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("booking API request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("booking API returned status %d: %s", resp.StatusCode, readDetail(resp.Body))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode booking API response: %w", err)
		}
		return nil
	}, c.retry, resilience.IsRetryableNetworkError)
}

func readDetail(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 512))
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return string(data)
}

// ListDoctors returns the active doctors.
func (c *Client) ListDoctors(ctx context.Context) ([]Doctor, error) {
	var doctors []Doctor
	if err := c.getJSON(ctx, "/doctors/", &doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}

// DoctorSchedule returns the doctor's next available dates in YYYY-MM-DD form.
func (c *Client) DoctorSchedule(ctx context.Context, doctorID string) ([]string, error) {
	var out struct {
		AvailableDates []string `json:"available_dates"`
	}
	path := fmt.Sprintf("/doctors/%s/schedule", url.PathEscape(doctorID))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.AvailableDates, nil
}

// AvailableSlots returns the open HH:MM slots for a doctor on a date.
func (c *Client) AvailableSlots(ctx context.Context, doctorID, date string) ([]string, error) {
	var out struct {
		AvailableSlots []string `json:"available_slots"`
	}
	path := fmt.Sprintf("/appointments/available-slots/%s/%s", url.PathEscape(doctorID), url.PathEscape(date))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.AvailableSlots, nil
}

// CreateAppointment books one slot. A conflict (the slot was taken since it
// was listed) is returned as ErrSlotConflict. Not retried: the call is not
// idempotent and conflict recovery belongs to the hour-range loop.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode appointment: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/appointments/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("booking API request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var appt Appointment
		if err := json.NewDecoder(resp.Body).Decode(&appt); err != nil {
			return nil, fmt.Errorf("failed to decode appointment: %w", err)
		}
		return &appt, nil
	case http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", ErrSlotConflict, readDetail(resp.Body))
	default:
		return nil, fmt.Errorf("booking failed with status %d: %s", resp.StatusCode, readDetail(resp.Body))
	}
}

// AppointmentDetails looks up a scheduled appointment by patient identity.
func (c *Client) AppointmentDetails(ctx context.Context, patientName, patientPhone string) (*Appointment, error) {
	q := url.Values{}
	q.Set("patient_name", patientName)
	q.Set("patient_phone", patientPhone)

	var appts []Appointment
	if err := c.getJSON(ctx, "/appointments/?"+q.Encode(), &appts); err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, nil
	}
	return &appts[0], nil
}

// Ping probes the backend for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/doctors/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("booking API returned status %d", resp.StatusCode)
	}
	return nil
}
