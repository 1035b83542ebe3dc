package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medidesk/voice-agent/internal/config"
)

func TestNewSMSSender_DisabledReturnsNil(t *testing.T) {
	cfg := &config.Config{SMSConfirmation: false}
	if s := NewSMSSender(cfg); s != nil {
		t.Error("Expected nil sender when confirmations are disabled")
	}
}

func TestSMSSender_SendConfirmation(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/Accounts/AC123/Messages.json") {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Error("Missing or wrong basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		gotBody = r.PostForm.Get("Body")
		if r.PostForm.Get("To") != "+15551234567" {
			t.Errorf("Unexpected To: %s", r.PostForm.Get("To"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer server.Close()

	sender := &SMSSender{
		accountSID:    "AC123",
		authToken:     "token",
		fromNumber:    "+15550000000",
		clinicName:    "HealthCare Clinic",
		clinicAddress: "123 Health Street",
		baseURL:       server.URL,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
	}

	err := sender.SendConfirmation(context.Background(), "+15551234567", ConfirmationDetails{
		PatientName:   "Jane Doe",
		DoctorName:    "Priya Shah",
		Date:          "2026-09-01",
		Time:          "14:00",
		AppointmentID: "APT-17",
	})
	if err != nil {
		t.Fatalf("SendConfirmation failed: %v", err)
	}

	for _, want := range []string{"Jane Doe", "Dr. Priya Shah", "2026-09-01", "14:00", "APT-17", "HealthCare Clinic"} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("SMS body missing %q:\n%s", want, gotBody)
		}
	}
}

func TestSMSSender_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad number"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	sender := &SMSSender{
		accountSID: "AC123",
		authToken:  "token",
		fromNumber: "+1555",
		baseURL:    server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	if err := sender.SendConfirmation(context.Background(), "+1666", ConfirmationDetails{}); err == nil {
		t.Fatal("Expected error for non-2xx response")
	}
}
