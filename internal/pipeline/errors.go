package pipeline

import (
	"errors"
	"fmt"

	"github.com/vilakkam/vilakkam/internal/explain"
	"github.com/vilakkam/vilakkam/internal/guardrail"
	"github.com/vilakkam/vilakkam/internal/normalize"
)

// ErrRateLimited is wrapped by the Error returned when a client exceeds its
// admission budget.
var ErrRateLimited = errors.New("pipeline: rate limited")

// Kind classifies a pipeline failure for the transport layer.
type Kind int

// Failure kinds. Policy kinds are raised before any capability call.
const (
	KindRateLimited Kind = iota + 1
	KindInputTooLarge
	KindTooManyFollowups
	KindEmptyInput
	KindUnsupportedType
	KindOCRUnavailable
	KindExtractionService
	KindTranscriptionService
	KindExplanationService
)

var kindNames = map[Kind]string{
	KindRateLimited:          "rate_limited",
	KindInputTooLarge:        "input_too_large",
	KindTooManyFollowups:     "too_many_followups",
	KindEmptyInput:           "empty_input",
	KindUnsupportedType:      "unsupported_type",
	KindOCRUnavailable:       "ocr_unavailable",
	KindExtractionService:    "extraction_service",
	KindTranscriptionService: "transcription_service",
	KindExplanationService:   "explanation_service",
}

// String returns the snake_case name of k.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a pipeline failure carrying a short message that is safe to show
// to the user. Err holds the internal cause and is never shown.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err == nil {
		return "pipeline: " + e.Kind.String()
	}
	return "pipeline: " + e.Kind.String() + ": " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// User-facing messages.
const (
	msgRateLimited    = "Romba adhigama try panreenga. Konjam neram kalichu try pannunga."
	msgInputTooLarge  = "Message romba perusa irukku. Konjam short-aa anuppunga."
	msgTooManyFmt     = "Inga %d follow-up கேள்விகள் மட்டும். Pudhu message anuppunga."
	msgEmptyAudio     = "Empty audio upload."
	msgEmptyFile      = "Empty file upload."
	msgUnsupported    = "Unsupported file type. Upload PDF or image."
	msgOCRUnavailable = "File extraction failed: Tesseract is not installed or not in PATH. " +
		"Install Tesseract OCR, or set ocr.tesseract_cmd in the config file " +
		`(example: C:\Program Files\Tesseract-OCR\tesseract.exe).`
	msgExtraction    = "File-la irundhu text edukka mudiyala. Vera file anuppunga."
	msgTranscription = "Voice-a purinjikka mudiyala. Konjam neram kalichu try pannunga."
	msgExplanation   = "AI explain panna mudiyala. Konjam neram kalichu try pannunga."
)

// classify maps a stage error to a pipeline Error. followupLimit is only used
// to word the follow-up message; emptyMsg words ErrEmptyInput for the upload
// type at hand.
func classify(err error, followupLimit int, emptyMsg string) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return &Error{Kind: KindRateLimited, Message: msgRateLimited, Err: err}
	case errors.Is(err, guardrail.ErrInputTooLarge):
		return &Error{Kind: KindInputTooLarge, Message: msgInputTooLarge, Err: err}
	case errors.Is(err, guardrail.ErrTooManyFollowups):
		return &Error{Kind: KindTooManyFollowups, Message: fmt.Sprintf(msgTooManyFmt, followupLimit), Err: err}
	case errors.Is(err, normalize.ErrEmptyInput):
		return &Error{Kind: KindEmptyInput, Message: emptyMsg, Err: err}
	case errors.Is(err, normalize.ErrUnsupportedType):
		return &Error{Kind: KindUnsupportedType, Message: msgUnsupported, Err: err}
	case errors.Is(err, normalize.ErrOCRUnavailable):
		return &Error{Kind: KindOCRUnavailable, Message: msgOCRUnavailable, Err: err}
	case errors.Is(err, normalize.ErrTranscription):
		return &Error{Kind: KindTranscriptionService, Message: msgTranscription, Err: err}
	case errors.Is(err, explain.ErrExplanationService):
		return &Error{Kind: KindExplanationService, Message: msgExplanation, Err: err}
	default:
		return &Error{Kind: KindExtractionService, Message: msgExtraction, Err: err}
	}
}
