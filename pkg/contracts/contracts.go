// Package contracts declares the pharmacy tool contracts: names, input shapes, typed outputs and error codes
package contracts

type ErrorCode string

const (
	ErrUnknownTool        ErrorCode = "UNKNOWN_TOOL"
	ErrInvalidToolArgs    ErrorCode = "INVALID_TOOL_ARGS"
	ErrToolRuntime        ErrorCode = "TOOL_RUNTIME_ERROR"
	ErrInvalidToolOutput  ErrorCode = "INVALID_TOOL_OUTPUT"
	ErrMedNotFound        ErrorCode = "MED_NOT_FOUND"
	ErrPatientNotFound    ErrorCode = "PATIENT_NOT_FOUND"
	ErrUnknownMedID       ErrorCode = "UNKNOWN_MED_ID"
	ErrNoEquivalentsFound ErrorCode = "NO_EQUIVALENTS_FOUND"
	ErrInvalidQuery       ErrorCode = "INVALID_QUERY"
)

func (c ErrorCode) Valid() bool {
	switch c {
	case ErrUnknownTool, ErrInvalidToolArgs, ErrToolRuntime, ErrInvalidToolOutput,
		ErrMedNotFound, ErrPatientNotFound, ErrUnknownMedID, ErrNoEquivalentsFound, ErrInvalidQuery:
		return true
	}
	return false
}

type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Envelope is carried by every tool outcome. A failed outcome has an error and no tool fields.
type Envelope struct {
	OK    bool       `json:"ok"`
	Error *ToolError `json:"error"`
}

func (e Envelope) Outcome() Envelope {
	return e
}

// Output is implemented by every tool output through its embedded Envelope.
type Output interface {
	Outcome() Envelope
}

func Success() Envelope {
	return Envelope{OK: true}
}

func Failure(code ErrorCode, message string) Envelope {
	return Envelope{OK: false, Error: &ToolError{Code: code, Message: message}}
}

type Language string

const (
	LanguageHebrew  Language = "he"
	LanguageEnglish Language = "en"
)

func (l Language) Valid() bool {
	return l == LanguageHebrew || l == LanguageEnglish
}

type InteractionLevel string

const (
	LevelNone    InteractionLevel = "none"
	LevelCaution InteractionLevel = "caution"
	LevelAvoid   InteractionLevel = "avoid"
)

// Rank orders levels by severity; unknown levels rank below none.
func (l InteractionLevel) Rank() int {
	switch l {
	case LevelNone:
		return 0
	case LevelCaution:
		return 1
	case LevelAvoid:
		return 2
	}
	return -1
}

func (l InteractionLevel) Valid() bool {
	return l.Rank() >= 0
}

type Intent string

const (
	IntentNew    Intent = "new"
	IntentRefill Intent = "refill"
)

type NextStep string

const (
	StepRequestRxDetails   NextStep = "request_rx_details"
	StepAllowRefillRequest NextStep = "allow_refill_request"
	StepCannotProceed      NextStep = "cannot_proceed"
)

func (s NextStep) Valid() bool {
	return s == StepRequestRxDetails || s == StepAllowRefillRequest || s == StepCannotProceed
}

type RxStatus string

const (
	RxActive        RxStatus = "active"
	RxRefillPending RxStatus = "refill_pending"
	RxExpired       RxStatus = "expired"
	RxCancelled     RxStatus = "cancelled"
)

func (s RxStatus) Valid() bool {
	switch s {
	case RxActive, RxRefillPending, RxExpired, RxCancelled:
		return true
	}
	return false
}

// AvoidNotice is the fixed cautionary sentence for medications that must not be combined.
func AvoidNotice(lang Language) string {
	if lang == LanguageEnglish {
		return "These medications cannot be taken together. Consult a pharmacist or clinician."
	}
	return "לא ניתן ליטול תרופות אלו יחד. יש להתייעץ עם רוקח/ת או רופא/ה."
}

// PossibleDifferences lists what may differ between identical equivalents.
var PossibleDifferences = []string{"price", "inactive ingredients", "packaging"}
