package status

import "strings"

// Icon identifies the glyph rendered next to a log record.
type Icon string

const (
	IconSuccess Icon = "success"
	IconFailure Icon = "failure"
	IconWarning Icon = "warning"
	IconUnknown Icon = "unknown"
)

// CSS classes returned by ColorClass. The page stylesheet defines one
// background/text pair per class.
const (
	ClassSuccess    = "status-success"
	ClassFailure    = "status-failure"
	ClassWarning    = "status-warning"
	ClassProcessing = "status-processing"
	ClassUnknown    = "status-unknown"
)

// Classify returns the icon bucket for a machine status label.
// Only the literal "unknown" maps to IconUnknown; any other unrecognized
// label gets the same warning treatment as "Idle".
func Classify(label string) Icon {
	switch normalize(label) {
	case "online", "running", "finished", "success", "ok":
		return IconSuccess
	case "offline", "error", "emergency", "fault", "failed":
		return IconFailure
	case "unknown":
		return IconUnknown
	case "idle", "warning", "maintenance":
		return IconWarning
	default:
		// Vocabulary gaps share the idle/warning treatment.
		return IconWarning
	}
}

// ColorClass returns the CSS class for a machine status label. Unlike
// Classify it keeps in-production statuses in a distinct bucket and defaults
// unrecognized labels to neutral gray rather than the warning styling.
func ColorClass(label string) string {
	switch normalize(label) {
	case "online", "running", "finished", "success", "ok":
		return ClassSuccess
	case "offline", "error", "emergency", "fault", "failed":
		return ClassFailure
	case "inproduction", "processing", "changeover", "starting":
		return ClassProcessing
	case "idle", "warning", "maintenance":
		return ClassWarning
	default:
		// Unlike Classify, unrecognized labels do not inherit the warning
		// styling here.
		return ClassUnknown
	}
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
