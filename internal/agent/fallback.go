package agent

import (
	"fmt"
	"strings"

	"github.com/medidesk/voice-agent/internal/booking"
	"github.com/medidesk/voice-agent/internal/tools"
)

// FallbackReply builds a deterministic spoken reply straight from a tool
// result, used when the phase-2 model call fails or returns nothing. The
// caller must never be left without a response just because the second model
// call broke.
//
// The type assertions below match the in-memory values the executor puts in
// its Result; this function must be fed the executor's own result, never one
// decoded back from the persisted JSON turn (that round-trip turns typed
// slices into []any and would degrade every template to its empty case).
func FallbackReply(toolName string, result tools.Result) string {
	success, _ := result["success"].(bool)
	errMsg, _ := result["error"].(string)

	switch tools.Kind(toolName) {
	case tools.KindGetAvailableDoctors:
		if !success {
			return "I'm having trouble fetching the doctor list at the moment. Could you try again?"
		}
		doctors, _ := result["doctors"].([]booking.Doctor)
		switch len(doctors) {
		case 0:
			return "I'm sorry, no doctors are currently available. Would you like me to help you with something else?"
		case 1:
			return fmt.Sprintf("We have Dr. %s (%s) available. Would you like to book an appointment with Dr. %s?",
				doctors[0].Name, doctors[0].Degree, doctors[0].Name)
		case 2:
			return fmt.Sprintf("We have Dr. %s and Dr. %s available. Which doctor would you prefer?",
				doctors[0].Name, doctors[1].Name)
		default:
			names := make([]string, 0, len(doctors)-1)
			for _, d := range doctors[:len(doctors)-1] {
				names = append(names, "Dr. "+d.Name)
			}
			return fmt.Sprintf("We have %s, and Dr. %s available. Which doctor would you like to see?",
				strings.Join(names, ", "), doctors[len(doctors)-1].Name)
		}

	case tools.KindGetDoctorSchedule:
		if !success {
			return fallbackError(errMsg, "I'm having trouble checking the doctor's schedule. Could you try again?")
		}
		dates, _ := result["available_dates"].([]string)
		if len(dates) == 0 {
			return "This doctor has no upcoming availability. Would you like to try another doctor?"
		}
		shown := dates
		if len(shown) > 3 {
			shown = shown[:3]
		}
		return fmt.Sprintf("The next available dates are %s. Which date works for you?", strings.Join(shown, ", "))

	case tools.KindGetAvailableSlots:
		if !success {
			return fallbackError(errMsg, "I'm having trouble checking availability. Could you try a different date?")
		}
		slots, _ := result["slots"].([]string)
		if len(slots) == 0 {
			return "I'm sorry, there are no available slots on that date. Would you like to try a different date?"
		}
		shown := slots
		if len(shown) > 3 {
			shown = shown[:3]
		}
		return fmt.Sprintf("I found %d available time slots, including %s. Which time works best for you?",
			len(slots), strings.Join(shown, ", "))

	case tools.KindGetAppointmentDetails:
		if !success {
			return fallbackError(errMsg, "I couldn't find that appointment. Could you confirm the name and phone number?")
		}
		if appt, ok := result["appointment"].(*booking.Appointment); ok && appt != nil {
			return fmt.Sprintf("Your appointment is on %s at %s. Is there anything else I can help you with?",
				appt.AppointmentDate, appt.AppointmentTime)
		}
		return "I found your appointment. Is there anything else I can help you with?"

	case tools.KindBookAppointmentInHourRange:
		if !success {
			if strings.TrimSpace(errMsg) != "" {
				return fmt.Sprintf("I'm sorry, I wasn't able to complete the booking. %s", errMsg)
			}
			return "I'm sorry, I wasn't able to complete the booking. Would you like to try again?"
		}
		confirmation, _ := result["confirmation_number"].(string)
		date, _ := result["date"].(string)
		timeSlot, _ := result["time"].(string)
		return fmt.Sprintf("Perfect! I've successfully booked your appointment for %s at %s. Your confirmation number is %s. Is there anything else I can help you with?",
			date, timeSlot, confirmation)

	default:
		return "Let me help you with that."
	}
}

func fallbackError(specific, generic string) string {
	if strings.TrimSpace(specific) != "" {
		return specific
	}
	return generic
}
