package sync

import "fmt"

// DriverContractViolationError means a Driver returned structurally invalid
// data from DescribeDatabase/DescribeTable/DescribeTableFks. Fatal to the
// run it occurred in.
type DriverContractViolationError struct {
	Component string // "table-reconciler", "field-reconciler", "fk-reconciler"
	Detail    string
}

func (e *DriverContractViolationError) Error() string {
	return fmt.Sprintf("driver contract violation in %s: %s", e.Component, e.Detail)
}

// InferenceTableMisconfigurationError means the Special-Type Inferrer's
// pattern table failed self-validation. Fatal at startup.
type InferenceTableMisconfigurationError struct {
	Detail string
}

func (e *InferenceTableMisconfigurationError) Error() string {
	return fmt.Sprintf("inference table misconfiguration: %s", e.Detail)
}
