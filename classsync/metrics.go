package classsync

import "time"

// MetricsCollector provides hooks for collecting engine metrics
type MetricsCollector interface {
	// RecordOperationDuration records how long an operation took
	RecordOperationDuration(operationType OperationType, duration time.Duration)

	// RecordOperationOutcome records an operation's terminal status
	RecordOperationOutcome(operationType OperationType, status OperationStatus)

	// RecordConflictDetected records a detected conflict by type and severity
	RecordConflictDetected(conflictType ConflictType, severity Severity)

	// RecordSyncError records engine errors by operation and error type
	RecordSyncError(operation string, errorType string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordOperationDuration(operationType OperationType, duration time.Duration) {
}
func (n *NoOpMetricsCollector) RecordOperationOutcome(operationType OperationType, status OperationStatus) {
}
func (n *NoOpMetricsCollector) RecordConflictDetected(conflictType ConflictType, severity Severity) {
}
func (n *NoOpMetricsCollector) RecordSyncError(operation string, errorType string) {}
