package dto

// DateLayout is the wire format of enrollment dates.
const DateLayout = "2006-01-02"

// BeginEnrollmentRequest starts an enrollment attempt for a program.
type BeginEnrollmentRequest struct {
	ProgramUID string `json:"programUid" validate:"required,max=64"`
}

// ConfirmDateRequest supplies the enrollment date of a parked attempt.
type ConfirmDateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// SelectOrgUnitRequest supplies the organisation unit of a parked attempt.
type SelectOrgUnitRequest struct {
	OrgUnitUID string `json:"orgUnitUid" validate:"required,max=64"`
}

// WorkflowOpenedResponse is returned when a workflow is opened.
type WorkflowOpenedResponse struct {
	ID        string `json:"id"`
	PersonUID string `json:"person_uid"`
}

// ProgramColorResponse carries a program's color token.
type ProgramColorResponse struct {
	ProgramUID string `json:"program_uid"`
	Color      string `json:"color"`
}
