package agent

import (
	"strings"
	"testing"

	"github.com/medidesk/voice-agent/internal/booking"
	"github.com/medidesk/voice-agent/internal/tools"
)

func TestFallbackReply_RendersInMemoryResultTypes(t *testing.T) {
	// The templates assert the executor's in-memory types. Feeding them the
	// executor's own Result must render the real values, not the empty-case
	// wording a decoded copy would produce.
	result := tools.Result{
		"success": true,
		"count":   2,
		"doctors": []booking.Doctor{
			{DoctorID: "DOC2001", Name: "Amit Kumar", Degree: "MBBS"},
			{DoctorID: "DOC2005", Name: "Priya Shah", Degree: "MD"},
		},
	}

	reply := FallbackReply(string(tools.KindGetAvailableDoctors), result)
	if !strings.Contains(reply, "Amit Kumar") || !strings.Contains(reply, "Priya Shah") {
		t.Errorf("Expected both doctor names in reply, got %q", reply)
	}
	if strings.Contains(reply, "no doctors") {
		t.Errorf("Typed doctor slice degraded to the empty case: %q", reply)
	}
}

func TestFallbackReply_AppointmentDetails(t *testing.T) {
	result := tools.Result{
		"success": true,
		"appointment": &booking.Appointment{
			ID:              5,
			AppointmentDate: "2026-08-28",
			AppointmentTime: "14:00",
		},
	}

	reply := FallbackReply(string(tools.KindGetAppointmentDetails), result)
	if !strings.Contains(reply, "2026-08-28") || !strings.Contains(reply, "14:00") {
		t.Errorf("Expected appointment date and time in reply, got %q", reply)
	}
}

func TestFallbackReply_BookingFailureSurfacesError(t *testing.T) {
	reply := FallbackReply(string(tools.KindBookAppointmentInHourRange), tools.Result{
		"success": false,
		"error":   "The last error was: slot taken.",
	})
	if !strings.Contains(reply, "slot taken") {
		t.Errorf("Expected the booking error surfaced, got %q", reply)
	}

	generic := FallbackReply(string(tools.KindBookAppointmentInHourRange), tools.Result{
		"success": false,
	})
	if !strings.Contains(generic, "try again") {
		t.Errorf("Expected the generic wording without an error message, got %q", generic)
	}
}
