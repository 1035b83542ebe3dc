package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/medidesk/voice-agent/internal/booking"
)

// fakeBooking scripts the booking backend. rejectSlots lists slot times that
// fail with a conflict; bookAttempts records every CreateAppointment call in
// order.
type fakeBooking struct {
	doctors      []booking.Doctor
	slots        map[string][]string // "doctorID/date" -> slots
	rejectSlots  map[string]bool     // slot -> fail with a conflict
	failSlots    map[string]bool     // slot -> fail with a backend error
	bookAttempts []string
	appointment  *booking.Appointment
	nextID       int
}

func newFakeBooking() *fakeBooking {
	return &fakeBooking{
		doctors: []booking.Doctor{
			{DoctorID: "DOC2001", Name: "Amit Kumar", Degree: "MBBS"},
			{DoctorID: "DOC2005", Name: "Priya Shah", Degree: "MD"},
		},
		slots:       make(map[string][]string),
		rejectSlots: make(map[string]bool),
		failSlots:   make(map[string]bool),
		nextID:      17,
	}
}

func (f *fakeBooking) ListDoctors(ctx context.Context) ([]booking.Doctor, error) {
	return f.doctors, nil
}

func (f *fakeBooking) DoctorSchedule(ctx context.Context, doctorID string) ([]string, error) {
	return []string{"2026-08-28", "2026-08-29"}, nil
}

func (f *fakeBooking) AvailableSlots(ctx context.Context, doctorID, date string) ([]string, error) {
	return f.slots[doctorID+"/"+date], nil
}

func (f *fakeBooking) CreateAppointment(ctx context.Context, req booking.AppointmentRequest) (*booking.Appointment, error) {
	f.bookAttempts = append(f.bookAttempts, req.AppointmentTime)
	if f.rejectSlots[req.AppointmentTime] {
		return nil, fmt.Errorf("%w: slot taken", booking.ErrSlotConflict)
	}
	if f.failSlots[req.AppointmentTime] {
		return nil, fmt.Errorf("booking failed with status 500")
	}
	appt := &booking.Appointment{
		ID:              f.nextID,
		PatientName:     req.PatientName,
		DoctorID:        req.DoctorID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		Status:          "SCHEDULED",
	}
	return appt, nil
}

func (f *fakeBooking) AppointmentDetails(ctx context.Context, name, phone string) (*booking.Appointment, error) {
	if f.appointment != nil {
		return f.appointment, nil
	}
	return nil, nil
}

func newTestExecutor(t *testing.T, svc booking.Service) *Executor {
	t.Helper()
	e, err := NewExecutor(svc)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	e.now = func() time.Time { return time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC) }
	return e
}

func TestExecutor_DispatchTableCoversSchemas(t *testing.T) {
	if _, err := NewExecutor(newFakeBooking()); err != nil {
		t.Fatalf("Dispatch table should cover all schemas: %v", err)
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	e := newTestExecutor(t, newFakeBooking())

	result := e.Execute(context.Background(), "cancel_appointment", json.RawMessage(`{}`))
	if ok, _ := result["success"].(bool); ok {
		t.Error("Unknown tool should report failure")
	}
	if result["error"] == nil {
		t.Error("Unknown tool should carry an error message")
	}
}

func TestExecutor_GetAvailableDoctors(t *testing.T) {
	e := newTestExecutor(t, newFakeBooking())

	result := e.Execute(context.Background(), string(KindGetAvailableDoctors), json.RawMessage(`{}`))
	if ok, _ := result["success"].(bool); !ok {
		t.Fatalf("Expected success: %v", result)
	}
	if result["count"] != 2 {
		t.Errorf("Expected count 2, got %v", result["count"])
	}
}

func TestExecutor_HourRange_NoSlotsInHour_NoBookingCalls(t *testing.T) {
	fake := newFakeBooking()
	fake.slots["DOC2001/2026-08-28"] = []string{"09:00", "09:15", "11:00"}
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(hourRangeArgs{
		PatientName:     "Jane Doe",
		PatientPhone:    "+1555",
		DoctorID:        "DOC2001",
		AppointmentDate: "2026-08-28",
		TimeRange:       "10 AM",
	})
	result := e.Execute(context.Background(), string(KindBookAppointmentInHourRange), args)

	if ok, _ := result["success"].(bool); ok {
		t.Fatal("Expected failure when hour has no open slots")
	}
	if len(fake.bookAttempts) != 0 {
		t.Errorf("Expected zero booking attempts, got %v", fake.bookAttempts)
	}
}

func TestExecutor_HourRange_ConflictAdvancesToNextSlot(t *testing.T) {
	fake := newFakeBooking()
	fake.slots["DOC2001/2026-08-28"] = []string{"10:00", "10:15", "10:30"}
	fake.rejectSlots["10:00"] = true
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(hourRangeArgs{
		PatientName:     "Jane Doe",
		PatientPhone:    "+1555",
		DoctorID:        "DOC2001",
		AppointmentDate: "2026-08-28",
		TimeRange:       "10 AM",
	})
	result := e.Execute(context.Background(), string(KindBookAppointmentInHourRange), args)

	if ok, _ := result["success"].(bool); !ok {
		t.Fatalf("Expected success: %v", result)
	}
	if result["time"] != "10:15" {
		t.Errorf("Expected 10:15 booked, got %v", result["time"])
	}
	// 10:00 tried first, 10:15 succeeded, 10:30 never attempted.
	if len(fake.bookAttempts) != 2 || fake.bookAttempts[0] != "10:00" || fake.bookAttempts[1] != "10:15" {
		t.Errorf("Unexpected attempt order: %v", fake.bookAttempts)
	}
}

func TestExecutor_HourRange_BackendErrorAdvancesToNextSlot(t *testing.T) {
	fake := newFakeBooking()
	fake.slots["DOC2001/2026-08-28"] = []string{"10:00", "10:15"}
	fake.failSlots["10:00"] = true
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(hourRangeArgs{
		PatientName:     "Jane Doe",
		PatientPhone:    "+1555",
		DoctorID:        "DOC2001",
		AppointmentDate: "2026-08-28",
		TimeRange:       "10 AM",
	})
	result := e.Execute(context.Background(), string(KindBookAppointmentInHourRange), args)

	// Non-conflict failures advance through the candidate set the same way
	// conflicts do.
	if ok, _ := result["success"].(bool); !ok {
		t.Fatalf("Expected success: %v", result)
	}
	if result["time"] != "10:15" {
		t.Errorf("Expected 10:15 booked, got %v", result["time"])
	}
	if len(fake.bookAttempts) != 2 {
		t.Errorf("Expected both slots attempted, got %v", fake.bookAttempts)
	}
}

func TestExecutor_HourRange_AllSlotsExhausted(t *testing.T) {
	fake := newFakeBooking()
	fake.slots["DOC2001/2026-08-28"] = []string{"10:00", "10:15"}
	fake.rejectSlots["10:00"] = true
	fake.rejectSlots["10:15"] = true
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(hourRangeArgs{
		PatientName:     "Jane Doe",
		PatientPhone:    "+1555",
		DoctorID:        "DOC2001",
		AppointmentDate: "2026-08-28",
		TimeRange:       "10 AM",
	})
	result := e.Execute(context.Background(), string(KindBookAppointmentInHourRange), args)

	if ok, _ := result["success"].(bool); ok {
		t.Fatal("Expected failure when every slot conflicts")
	}
	errMsg, _ := result["error"].(string)
	if errMsg == "" {
		t.Error("Expected the last error to be surfaced")
	}
	if len(fake.bookAttempts) != 2 {
		t.Errorf("Expected both slots attempted, got %v", fake.bookAttempts)
	}
}

func TestExecutor_DrShahTomorrowAt2PM(t *testing.T) {
	fake := newFakeBooking()
	// "tomorrow" relative to the fixed clock is 2026-08-28.
	fake.slots["DOC2005/2026-08-28"] = []string{"13:00", "14:00", "14:15", "15:00"}
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(hourRangeArgs{
		PatientName:     "Jane Doe",
		PatientPhone:    "+15551234567",
		DoctorID:        "Dr. Shah",
		AppointmentDate: "tomorrow",
		TimeRange:       "2 PM",
	})
	result := e.Execute(context.Background(), string(KindBookAppointmentInHourRange), args)

	if ok, _ := result["success"].(bool); !ok {
		t.Fatalf("Expected success: %v", result)
	}
	if result["date"] != "2026-08-28" {
		t.Errorf("Expected resolved date 2026-08-28, got %v", result["date"])
	}
	if result["time"] != "14:00" {
		t.Errorf("Expected 14:00 booked, got %v", result["time"])
	}
	if result["doctor_id"] != "DOC2005" {
		t.Errorf("Expected doctor resolved to DOC2005, got %v", result["doctor_id"])
	}
	confirmation, _ := result["confirmation_number"].(string)
	if confirmation != "APT-17" {
		t.Errorf("Expected confirmation APT-17, got %q", confirmation)
	}
}

func TestExecutor_GetAvailableSlots_RejectsPastDate(t *testing.T) {
	fake := newFakeBooking()
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(slotsArgs{DoctorID: "DOC2001", Date: "2026-08-26"})
	result := e.Execute(context.Background(), string(KindGetAvailableSlots), args)

	if ok, _ := result["success"].(bool); ok {
		t.Fatal("Expected failure for a past date")
	}
}

func TestExecutor_GetAvailableSlots_FuzzyDoctorName(t *testing.T) {
	fake := newFakeBooking()
	fake.slots["DOC2001/2026-08-28"] = []string{"10:00"}
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(slotsArgs{DoctorID: "doctor amit", Date: "2026-08-28"})
	result := e.Execute(context.Background(), string(KindGetAvailableSlots), args)

	if ok, _ := result["success"].(bool); !ok {
		t.Fatalf("Expected success: %v", result)
	}
	if result["doctor_id"] != "DOC2001" {
		t.Errorf("Expected DOC2001, got %v", result["doctor_id"])
	}
}

func TestExecutor_GetAppointmentDetails(t *testing.T) {
	fake := newFakeBooking()
	e := newTestExecutor(t, fake)

	args, _ := json.Marshal(detailsArgs{PatientName: "Jane Doe", PatientPhone: "+1555"})
	result := e.Execute(context.Background(), string(KindGetAppointmentDetails), args)
	if ok, _ := result["success"].(bool); ok {
		t.Fatal("Expected failure when no appointment exists")
	}

	fake.appointment = &booking.Appointment{ID: 5, PatientName: "Jane Doe"}
	result = e.Execute(context.Background(), string(KindGetAppointmentDetails), args)
	if ok, _ := result["success"].(bool); !ok {
		t.Fatalf("Expected success: %v", result)
	}
}

func TestExecutor_HourRange_UnparseableTime(t *testing.T) {
	e := newTestExecutor(t, newFakeBooking())

	args, _ := json.Marshal(hourRangeArgs{
		PatientName:     "Jane Doe",
		PatientPhone:    "+1555",
		DoctorID:        "DOC2001",
		AppointmentDate: "2026-08-28",
		TimeRange:       "whenever",
	})
	result := e.Execute(context.Background(), string(KindBookAppointmentInHourRange), args)
	if ok, _ := result["success"].(bool); ok {
		t.Fatal("Expected failure for unparseable time range")
	}
}
