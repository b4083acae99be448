package narrative

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const maxErrorDetail = 200

const insufficientCreditMessage = "AI analysis is unavailable because the AI service account is out of credit. Please contact the administrator."

var creditPhrases = []string{
	"credit balance is too low",
	"insufficient credit",
	"billing",
}

// Error is a failed narrative generation, classified for display.
type Error struct {
	InsufficientCredit bool
	Err                error
}

func (e *Error) Error() string {
	return "narrative: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is safe to show to dashboard users.
func (e *Error) Message() string {
	if e.InsufficientCredit {
		return insufficientCreditMessage
	}
	detail := e.Err.Error()
	if len(detail) > maxErrorDetail {
		n := maxErrorDetail
		for n > 0 && !utf8.RuneStart(detail[n]) {
			n--
		}
		detail = detail[:n]
	}
	return "AI analysis failed: " + detail
}

// Classify wraps err as an *Error, detecting credit exhaustion from its text.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ne *Error
	if errors.As(err, &ne) {
		return ne
	}
	text := strings.ToLower(err.Error())
	for _, phrase := range creditPhrases {
		if strings.Contains(text, phrase) {
			return &Error{InsufficientCredit: true, Err: err}
		}
	}
	return &Error{Err: err}
}
