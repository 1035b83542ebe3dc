// Package booking is the boundary client to the clinic's appointment
// backend. Availability computation, capacity rules and per-slot uniqueness
// all live on the backend; this package only transports requests and maps
// conflicts to a typed error the tool layer can retry over.
package booking

import (
	"context"
	"errors"
)

// ErrSlotConflict is returned when the backend rejects a booking because the
// slot was taken between listing and booking. Callers retry the next slot.
var ErrSlotConflict = errors.New("appointment slot already taken")

// Doctor is one bookable clinician.
type Doctor struct {
	DoctorID       string `json:"doctor_id"`
	Name           string `json:"name"`
	Degree         string `json:"degree"`
	Specialization string `json:"specialization"`
}

// AppointmentRequest is the create payload.
type AppointmentRequest struct {
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone"`
	DoctorID        string `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes,omitempty"`
	Status          string `json:"status"`
}

// Appointment is a booked or looked-up appointment.
type Appointment struct {
	ID              int    `json:"id"`
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone"`
	DoctorID        string `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Status          string `json:"status"`
}

// Service is the boundary contract; the HTTP client implements it and tests
// substitute fakes.
type Service interface {
	ListDoctors(ctx context.Context) ([]Doctor, error)
	DoctorSchedule(ctx context.Context, doctorID string) ([]string, error)
	AvailableSlots(ctx context.Context, doctorID, date string) ([]string, error)
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error)
	AppointmentDetails(ctx context.Context, patientName, patientPhone string) (*Appointment, error)
}
