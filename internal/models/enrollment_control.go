package models

// Enrollment control conditions understood by the program filter stage.
const (
	ConditionEquals      = "equals"
	ConditionNotEquals   = "not_equals"
	ConditionBetween     = "between"
	ConditionContains    = "contains"
	ConditionNotContains = "not_contains"
	ConditionGreaterThan = "greater_than"
	ConditionLessThan    = "less_than"
)

// ProgramEnrollmentControl restricts a program to persons whose attribute satisfies Condition.
type ProgramEnrollmentControl struct {
	ProgramUID     string `json:"programUid"`
	AttributeUID   string `json:"attributeUid"`
	AttributeValue string `json:"attributeValue"`
	Condition      string `json:"condition"`
}

// WorkflowConfig is the JSON document kept in the data store.
type WorkflowConfig struct {
	TeiCreatablePrograms     []string                   `json:"teiCreatablePrograms"`
	ProgramEnrollmentControl []ProgramEnrollmentControl `json:"programEnrollmentControl"`
}
