package task

import "strings"

// Severity drives the executor's recovery strategy for a failed attempt.
type Severity string

const (
	SeverityTransient   Severity = "transient"   // Timeout, rate limit → retry with backoff.
	SeverityRecoverable Severity = "recoverable" // Missing resource, connectivity → fresh approach.
	SeveritySevere      Severity = "severe"      // Data at risk → rollback then retry.
	SeverityCritical    Severity = "critical"    // Unrecoverable → escalate immediately.
)

// severityClass is one keyword class of the classifier table. Classes are
// checked in order; the first match wins.
type severityClass struct {
	severity Severity
	signals  []string
}

var severityTable = []severityClass{
	{SeverityTransient, []string{
		"timeout", "timed out", "rate limit", "429", "503",
		"connection reset", "broken pipe", "temporary",
	}},
	{SeverityRecoverable, []string{
		"address already in use", "port", "already exists",
		"permission denied", "no such file", "not found",
		"missing", "dependency", "module", "import",
		"could not connect", "connection refused",
	}},
	{SeveritySevere, []string{
		"corrupt", "integrity", "foreign key", "constraint",
		"deadlock", "serialization", "out of memory", "disk full",
	}},
}

// Classify maps an error to a severity by substring matching against the
// ordered keyword classes. Pure and deterministic: retries re-derive the
// same severity from the same error text. Unmatched errors default to
// Recoverable — an explicit optimistic choice, bounded by the recovery
// budget rather than a distinct severity.
func Classify(err error) Severity {
	if err == nil {
		return SeverityRecoverable
	}
	msg := strings.ToLower(err.Error())
	for _, class := range severityTable {
		for _, signal := range class.signals {
			if strings.Contains(msg, signal) {
				return class.severity
			}
		}
	}
	return SeverityRecoverable
}
