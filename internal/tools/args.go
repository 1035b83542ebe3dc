package tools

// Argument structs decoded from the model's JSON tool-call arguments. Field
// names track the schema definitions in schema.go.

type scheduleArgs struct {
	DoctorID string `json:"doctor_id"`
}

type slotsArgs struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
}

type detailsArgs struct {
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
}

type hourRangeArgs struct {
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone"`
	DoctorID        string `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	TimeRange       string `json:"time_range"`
	Reason          string `json:"reason"`
}
