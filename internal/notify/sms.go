// Package notify sends booking confirmation SMS messages through the Twilio
// REST API. Delivery is best effort: a failed send is logged, never surfaced
// to the caller mid-conversation.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/observability"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// SMSSender sends text messages from the clinic's Twilio number.
type SMSSender struct {
	accountSID    string
	authToken     string
	fromNumber    string
	clinicName    string
	clinicAddress string
	baseURL       string
	httpClient    *http.Client
}

// NewSMSSender creates a sender from config. Returns nil when SMS
// confirmations are disabled so callers can gate on it.
func NewSMSSender(cfg *config.Config) *SMSSender {
	if !cfg.SMSConfirmation {
		return nil
	}
	return &SMSSender{
		accountSID:    cfg.TwilioAccountSID,
		authToken:     cfg.TwilioAuthToken,
		fromNumber:    cfg.TwilioPhoneNumber,
		clinicName:    cfg.ClinicName,
		clinicAddress: cfg.ClinicAddress,
		baseURL:       twilioBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ConfirmationDetails is everything the confirmation template needs.
type ConfirmationDetails struct {
	PatientName   string
	DoctorName    string
	Date          string
	Time          string
	AppointmentID string
}

// SendConfirmation sends the appointment confirmation SMS.
func (s *SMSSender) SendConfirmation(ctx context.Context, toNumber string, details ConfirmationDetails) error {
	body := fmt.Sprintf(
		"Hi %s!\n\nYour appointment is confirmed:\n\nDoctor: Dr. %s\nDate: %s\nTime: %s\nConfirmation: %s\n\nAddress: %s\n\nReply CANCEL to cancel.\n\n- %s",
		details.PatientName,
		details.DoctorName,
		details.Date,
		details.Time,
		details.AppointmentID,
		s.clinicAddress,
		s.clinicName,
	)
	return s.send(ctx, toNumber, body)
}

func (s *SMSSender) send(ctx context.Context, toNumber, body string) error {
	form := url.Values{}
	form.Set("From", s.fromNumber)
	form.Set("To", toNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("SMS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("SMS send returned status %d", resp.StatusCode)
	}

	log := observability.GetLogger()
	log.Info().
		Str("to", toNumber).
		Msg("Confirmation SMS sent")
	return nil
}
