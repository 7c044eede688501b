package diary

import (
	"database/sql/driver"
	"fmt"
)

// Status is the state of a compute job as seen on the filesystem, stored by its short code
type Status string

// job statuses, stored as 3-letter codes
const (
	StatusNone              Status = "non"
	StatusPending           Status = "pen"
	StatusRunning           Status = "run"
	StatusFinished          Status = "fin"
	StatusNormalTermination Status = "nor"
	StatusErrorTermination  Status = "err"
	StatusOtherTermination  Status = "oth"
)

// StatusValues lists all statuses in display order
var StatusValues = []Status{StatusNone, StatusPending, StatusRunning, StatusFinished,
	StatusNormalTermination, StatusErrorTermination, StatusOtherTermination}

var statusNames = map[Status]string{
	StatusNone:              "none / undefined",
	StatusPending:           "pending",
	StatusRunning:           "running",
	StatusFinished:          "finished",
	StatusNormalTermination: "normal termination",
	StatusErrorTermination:  "error termination",
	StatusOtherTermination:  "other termination",
}

var statusColors = map[Status]string{
	StatusNone:              "light",
	StatusPending:           "primary",
	StatusRunning:           "secondary",
	StatusFinished:          "info",
	StatusNormalTermination: "success",
	StatusErrorTermination:  "danger",
	StatusOtherTermination:  "warning",
}

// ParseStatus converts a stored code to Status
func ParseStatus(code string) (Status, error) {
	s := Status(code)
	if _, ok := statusNames[s]; !ok {
		return StatusNone, fmt.Errorf("invalid job status %q", code)
	}
	return s, nil
}

// String returns the human-readable name
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return string(s)
}

// Code returns the stored code
func (s Status) Code() string { return string(s) }

// Color returns the badge color class for the status
func (s Status) Color() string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "dark"
}

// Terminal is true for every status the updater doesn't need to check again.
// Only pending and running jobs may still change on the filesystem.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusRunning
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) { return []byte(s), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value implements driver.Valuer
func (s Status) Value() (driver.Value, error) {
	if s == "" {
		return string(StatusNone), nil
	}
	return string(s), nil
}

// Scan implements sql.Scanner
func (s *Status) Scan(value any) error {
	code, err := scanCode(value)
	if err != nil {
		return err
	}
	if code == "" {
		*s = StatusNone
		return nil
	}
	v, err := ParseStatus(code)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AnalysisStatus tracks how far the user got analysing the job results
type AnalysisStatus string

// analysis statuses
const (
	AnalysisOpen    AnalysisStatus = "opn"
	AnalysisOngoing AnalysisStatus = "ong"
	AnalysisDone    AnalysisStatus = "don"
)

// AnalysisValues lists all analysis statuses in display order
var AnalysisValues = []AnalysisStatus{AnalysisOpen, AnalysisOngoing, AnalysisDone}

var analysisNames = map[AnalysisStatus]string{
	AnalysisOpen:    "open",
	AnalysisOngoing: "ongoing",
	AnalysisDone:    "done",
}

var analysisColors = map[AnalysisStatus]string{
	AnalysisOpen:    "primary",
	AnalysisOngoing: "secondary",
	AnalysisDone:    "success",
}

// ParseAnalysisStatus converts a stored code to AnalysisStatus
func ParseAnalysisStatus(code string) (AnalysisStatus, error) {
	a := AnalysisStatus(code)
	if _, ok := analysisNames[a]; !ok {
		return AnalysisOpen, fmt.Errorf("invalid analysis status %q", code)
	}
	return a, nil
}

// String returns the human-readable name
func (a AnalysisStatus) String() string {
	if name, ok := analysisNames[a]; ok {
		return name
	}
	return string(a)
}

// Code returns the stored code
func (a AnalysisStatus) Code() string { return string(a) }

// Color returns the badge color class
func (a AnalysisStatus) Color() string {
	if c, ok := analysisColors[a]; ok {
		return c
	}
	return "dark"
}

// MarshalText implements encoding.TextMarshaler
func (a AnalysisStatus) MarshalText() ([]byte, error) { return []byte(a), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (a *AnalysisStatus) UnmarshalText(text []byte) error {
	v, err := ParseAnalysisStatus(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Value implements driver.Valuer
func (a AnalysisStatus) Value() (driver.Value, error) {
	if a == "" {
		return string(AnalysisOpen), nil
	}
	return string(a), nil
}

// Scan implements sql.Scanner
func (a *AnalysisStatus) Scan(value any) error {
	code, err := scanCode(value)
	if err != nil {
		return err
	}
	if code == "" {
		*a = AnalysisOpen
		return nil
	}
	v, err := ParseAnalysisStatus(code)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Assessment is the user's verdict on the job result. Empty means not assessed yet.
type Assessment string

// result assessments
const (
	AssessmentUnset    Assessment = ""
	AssessmentOK       Assessment = "ok"
	AssessmentNotOK    Assessment = "nok"
	AssessmentOther    Assessment = "oth"
	AssessmentIssue    Assessment = "isu"
	AssessmentObsolete Assessment = "obs"
)

// AssessmentValues lists all selectable assessments, unset included
var AssessmentValues = []Assessment{AssessmentUnset, AssessmentOK, AssessmentNotOK,
	AssessmentOther, AssessmentIssue, AssessmentObsolete}

var assessmentNames = map[Assessment]string{
	AssessmentUnset:    "",
	AssessmentOK:       "ok",
	AssessmentNotOK:    "not ok",
	AssessmentOther:    "other",
	AssessmentIssue:    "issue",
	AssessmentObsolete: "obsolete",
}

var assessmentColors = map[Assessment]string{
	AssessmentOK:       "success",
	AssessmentNotOK:    "danger",
	AssessmentOther:    "info",
	AssessmentIssue:    "warning",
	AssessmentObsolete: "light",
}

// ParseAssessment converts a stored code to Assessment
func ParseAssessment(code string) (Assessment, error) {
	a := Assessment(code)
	if _, ok := assessmentNames[a]; !ok {
		return AssessmentUnset, fmt.Errorf("invalid result assessment %q", code)
	}
	return a, nil
}

// String returns the human-readable name, empty for unset
func (a Assessment) String() string {
	if name, ok := assessmentNames[a]; ok {
		return name
	}
	return string(a)
}

// Code returns the stored code
func (a Assessment) Code() string { return string(a) }

// Color returns the badge color class
func (a Assessment) Color() string {
	if c, ok := assessmentColors[a]; ok {
		return c
	}
	return "dark"
}

// MarshalText implements encoding.TextMarshaler
func (a Assessment) MarshalText() ([]byte, error) { return []byte(a), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Assessment) UnmarshalText(text []byte) error {
	v, err := ParseAssessment(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Value implements driver.Valuer
func (a Assessment) Value() (driver.Value, error) { return string(a), nil }

// Scan implements sql.Scanner
func (a *Assessment) Scan(value any) error {
	code, err := scanCode(value)
	if err != nil {
		return err
	}
	v, err := ParseAssessment(code)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func scanCode(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported code type %T", value)
	}
}
