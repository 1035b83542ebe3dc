// Package tools exposes the booking operations the language model can
// invoke. The schema list is a stable API surface: adding a tool means one
// schema entry plus one handler in the dispatch table, which is validated
// against the schemas at startup.
package tools

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// Kind is the closed set of tool identifiers. The model's free-form function
// name is decoded into a Kind at the executor boundary; everywhere else the
// dispatch is typed.
type Kind string

const (
	KindGetAvailableDoctors        Kind = "get_available_doctors"
	KindGetDoctorSchedule          Kind = "get_doctor_schedule"
	KindGetAvailableSlots          Kind = "get_available_slots"
	KindGetAppointmentDetails      Kind = "get_appointment_details"
	KindBookAppointmentInHourRange Kind = "book_appointment_in_hour_range"
)

// Schemas returns the tool definitions sent to the language model on every
// phase-1 call.
func Schemas() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(KindGetAvailableDoctors),
				Description: "Get a list of all active doctors. Use this when the user wants to know which doctors are available.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {},
					"required": []
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(KindGetDoctorSchedule),
				Description: "Finds the next available DATES for a single, specific doctor. Use this ONLY when the user asks for a doctor's availability but has NOT provided a specific date.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"doctor_id": {
							"type": "string",
							"description": "The exact doctor_id of the doctor (e.g., DOC2005)."
						}
					},
					"required": ["doctor_id"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(KindGetAvailableSlots),
				Description: "Gets the available appointment TIME SLOTS for a doctor on ONE specific date. Use this ONLY after you have confirmed both the doctor and the exact date with the user.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"doctor_id": {
							"type": "string",
							"description": "The exact doctor_id for the appointment."
						},
						"date": {
							"type": "string",
							"description": "The specific date for the appointment in YYYY-MM-DD format."
						}
					},
					"required": ["doctor_id", "date"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(KindGetAppointmentDetails),
				Description: "Fetch the details of an existing scheduled appointment for a patient using their name and phone number. Use this if the user asks 'where is my appointment?' or 'what are my booking details?'.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"patient_name": {
							"type": "string",
							"description": "The full name of the patient."
						},
						"patient_phone": {
							"type": "string",
							"description": "The patient's phone number."
						}
					},
					"required": ["patient_name", "patient_phone"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(KindBookAppointmentInHourRange),
				Description: "Book an appointment within a specified hour range (e.g., '2 PM', '10-11 AM'). The system will automatically find and book the first available 15-minute slot in that hour.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"patient_name": {"type": "string"},
						"patient_phone": {"type": "string"},
						"doctor_id": {"type": "string"},
						"appointment_date": {"type": "string"},
						"time_range": {
							"type": "string",
							"description": "The desired hour for the appointment, e.g., '3 PM' or 'between 10 and 11 AM'."
						},
						"reason": {"type": "string"}
					},
					"required": ["patient_name", "patient_phone", "doctor_id", "appointment_date", "time_range"]
				}`),
			},
		},
	}
}
