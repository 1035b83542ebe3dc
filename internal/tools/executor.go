package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/medidesk/voice-agent/internal/booking"
	"github.com/medidesk/voice-agent/internal/observability"
)

// Result is the structured outcome of one tool execution. "success" is
// always present; handlers convert their own errors into it rather than
// letting anything unwind into the call loop.
type Result map[string]any

func failure(format string, args ...any) Result {
	return Result{"success": false, "error": fmt.Sprintf(format, args...)}
}

type handlerFunc func(ctx context.Context, args json.RawMessage) Result

// Executor dispatches tool invocations decoded from the model's responses to
// typed handlers backed by the booking service.
type Executor struct {
	svc      booking.Service
	now      func() time.Time
	handlers map[Kind]handlerFunc
}

// NewExecutor builds the dispatch table and validates it against the
// published schemas, so a schema without a handler (or vice versa) fails at
// startup instead of at the first call.
func NewExecutor(svc booking.Service) (*Executor, error) {
	e := &Executor{
		svc: svc,
		now: time.Now,
	}
	e.handlers = map[Kind]handlerFunc{
		KindGetAvailableDoctors:        e.getAvailableDoctors,
		KindGetDoctorSchedule:          e.getDoctorSchedule,
		KindGetAvailableSlots:          e.getAvailableSlots,
		KindGetAppointmentDetails:      e.getAppointmentDetails,
		KindBookAppointmentInHourRange: e.bookAppointmentInHourRange,
	}

	schemas := Schemas()
	if len(schemas) != len(e.handlers) {
		return nil, fmt.Errorf("tool dispatch table has %d handlers for %d schemas", len(e.handlers), len(schemas))
	}
	for _, schema := range schemas {
		if _, ok := e.handlers[Kind(schema.Function.Name)]; !ok {
			return nil, fmt.Errorf("no handler for tool schema %q", schema.Function.Name)
		}
	}
	return e, nil
}

// Execute runs the named tool. Unknown names are the one place the typed
// dispatch meets the model's free-form output, so they stay a runtime check
// returning a structured failure.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) Result {
	handler, ok := e.handlers[Kind(name)]
	if !ok {
		observability.RecordToolExecution(name, false)
		return failure("Unknown function: %s", name)
	}

	result := handler(ctx, args)
	succeeded, _ := result["success"].(bool)
	observability.RecordToolExecution(name, succeeded)
	return result
}

func (e *Executor) getAvailableDoctors(ctx context.Context, _ json.RawMessage) Result {
	doctors, err := e.svc.ListDoctors(ctx)
	if err != nil {
		return failure("Unable to fetch the doctor list: %v", err)
	}
	if len(doctors) == 0 {
		return Result{
			"success": false,
			"error":   "No doctors are currently available.",
			"doctors": []booking.Doctor{},
		}
	}
	return Result{
		"success": true,
		"count":   len(doctors),
		"doctors": doctors,
	}
}

func (e *Executor) getDoctorSchedule(ctx context.Context, raw json.RawMessage) Result {
	var args scheduleArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Invalid arguments: %v", err)
	}

	doctorID, err := e.resolveDoctorID(ctx, args.DoctorID)
	if err != nil {
		return failure("Could not find a doctor named %q.", args.DoctorID)
	}

	dates, err := e.svc.DoctorSchedule(ctx, doctorID)
	if err != nil {
		return failure("Unable to fetch the doctor's schedule: %v", err)
	}
	if len(dates) == 0 {
		return failure("This doctor has no upcoming availability. Please check another doctor.")
	}
	return Result{
		"success":         true,
		"doctor_id":       doctorID,
		"available_dates": dates,
	}
}

func (e *Executor) getAvailableSlots(ctx context.Context, raw json.RawMessage) Result {
	var args slotsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Invalid arguments: %v", err)
	}
	result, _ := e.listSlots(ctx, args.DoctorID, args.Date)
	return result
}

// listSlots is shared between the slot-lookup tool and the hour-range
// booking loop. It returns the slot list alongside the Result so the loop
// can reuse the resolved doctor id and normalized date.
func (e *Executor) listSlots(ctx context.Context, doctorID, date string) (Result, []string) {
	resolved, err := e.resolveDoctorID(ctx, doctorID)
	if err != nil {
		return failure("Could not find doctor %q. Please specify the doctor again.", doctorID), nil
	}

	formattedDate := ParseDate(date, e.now())

	if parsed, perr := time.Parse("2006-01-02", formattedDate); perr == nil {
		today := e.now().Format("2006-01-02")
		if parsed.Format("2006-01-02") < today {
			return failure("The date %s is in the past. Please provide a future date.", formattedDate), nil
		}
	}

	slots, err := e.svc.AvailableSlots(ctx, resolved, formattedDate)
	if err != nil {
		return failure("Unable to check availability: %v", err), nil
	}
	if len(slots) == 0 {
		return failure("No slots available on %s. Please try another date.", formattedDate), nil
	}

	return Result{
		"success":   true,
		"doctor_id": resolved,
		"date":      formattedDate,
		"slots":     slots,
		"count":     len(slots),
	}, slots
}

func (e *Executor) getAppointmentDetails(ctx context.Context, raw json.RawMessage) Result {
	var args detailsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Invalid arguments: %v", err)
	}

	appt, err := e.svc.AppointmentDetails(ctx, args.PatientName, args.PatientPhone)
	if err != nil {
		return failure("Unable to look up the appointment: %v", err)
	}
	if appt == nil {
		return failure("I couldn't find any scheduled appointments for that name and phone number.")
	}
	return Result{
		"success":     true,
		"appointment": appt,
	}
}

func (e *Executor) bookAppointmentInHourRange(ctx context.Context, raw json.RawMessage) Result {
	var args hourRangeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Invalid arguments: %v", err)
	}

	hour, err := ParseHour(args.TimeRange)
	if err != nil {
		return failure("I couldn't understand the time. Please specify an hour, like '2 PM' or 'between 10 and 11 AM'.")
	}

	slotsResult, slots := e.listSlots(ctx, args.DoctorID, args.AppointmentDate)
	if ok, _ := slotsResult["success"].(bool); !ok {
		return failure("It seems there are no slots available on %s.", args.AppointmentDate)
	}
	doctorID := slotsResult["doctor_id"].(string)
	date := slotsResult["date"].(string)

	prefix := fmt.Sprintf("%02d:", hour)
	var slotsInHour []string
	for _, s := range slots {
		if strings.HasPrefix(s, prefix) {
			slotsInHour = append(slotsInHour, s)
		}
	}
	if len(slotsInHour) == 0 {
		return failure("I'm sorry, but there are no available slots between %d:00 and %d:00. Please choose another time.", hour, hour+1)
	}
	sort.Strings(slotsInHour)

	// Availability can go stale between listing and booking, so each open
	// slot in the hour is tried in ascending order until one sticks.
	notes := args.Reason
	if notes == "" {
		notes = "Booked via voice call"
	}
	lastError := "No available slots found in the selected hour."
	for _, slot := range slotsInHour {
		appt, err := e.svc.CreateAppointment(ctx, booking.AppointmentRequest{
			PatientName:     strings.TrimSpace(args.PatientName),
			PatientPhone:    strings.TrimSpace(args.PatientPhone),
			DoctorID:        doctorID,
			AppointmentDate: date,
			AppointmentTime: slot,
			Notes:           notes,
			Status:          "SCHEDULED",
		})
		if err == nil {
			return Result{
				"success":             true,
				"appointment_id":      appt.ID,
				"confirmation_number": fmt.Sprintf("APT-%d", appt.ID),
				"patient_name":        appt.PatientName,
				"doctor_id":           appt.DoctorID,
				"date":                appt.AppointmentDate,
				"time":                appt.AppointmentTime,
			}
		}

		// Conflicts and other failures alike advance to the next candidate;
		// the bounded set keeps this cheap.
		lastError = err.Error()
	}

	return failure("I tried all available slots between %d:00 and %d:00, but was unable to book. The last error was: %s. Would you like to try a different hour?", hour, hour+1, lastError)
}

// resolveDoctorID accepts a real doctor id untouched and fuzzy-matches
// anything else (a spoken name, with or without the honorific) against the
// doctor list.
func (e *Executor) resolveDoctorID(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "DOC") {
		return input, nil
	}

	doctors, err := e.svc.ListDoctors(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list doctors: %w", err)
	}

	cleaned := cleanDoctorName(input)
	if cleaned == "" {
		return "", fmt.Errorf("empty doctor name")
	}

	for _, doc := range doctors {
		if cleanDoctorName(doc.Name) == cleaned {
			return doc.DoctorID, nil
		}
	}
	for _, doc := range doctors {
		name := cleanDoctorName(doc.Name)
		if strings.Contains(name, cleaned) || strings.Contains(cleaned, name) {
			return doc.DoctorID, nil
		}
		// Any significant word of the input matching a name part counts.
		for _, part := range strings.Fields(cleaned) {
			if len(part) > 2 && strings.Contains(name, part) {
				return doc.DoctorID, nil
			}
		}
	}

	return "", fmt.Errorf("no doctor matching %q", input)
}

func cleanDoctorName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, prefix := range []string{"dr.", "doctor", "dr"} {
		name = strings.TrimSpace(strings.TrimPrefix(name, prefix))
	}
	return name
}
