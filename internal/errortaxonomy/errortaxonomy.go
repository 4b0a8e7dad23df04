// Package errortaxonomy classifies provider and transport errors into a
// fixed set of kinds so the send pipeline can decide retry vs. terminal
// failure without knowing anything about a specific ESP.
package errortaxonomy

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Kind is one of the five classification buckets.
type Kind string

const (
	KindValidation Kind = "validation"
	KindPermanent  Kind = "permanent"
	KindTransient  Kind = "transient"
	KindQuota      Kind = "quota"
	KindTimeout    Kind = "timeout"
)

// Retryable reports whether errors of this kind should be requeued.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindQuota, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the classified representation of a provider or transport failure.
type Error struct {
	Code            string
	Kind            Kind
	Retryable       bool
	Message         string
	OriginalCode    string
	OriginalMessage string
	Metadata        map[string]string
}

func (e *Error) Error() string { return e.Message }

// knownCode maps a fixed table of provider error codes to a classification.
// Codes are provider-agnostic strings normalised by the caller (e.g. an API
// driver translates its SDK's error code into one of these before calling
// Classify, or relies on the HTTP-status fallback below).
var knownCodes = map[string]Error{
	"message-rejected":    {Code: "message_rejected", Kind: KindPermanent, Retryable: false, Message: "message rejected by provider"},
	"account-suspended":   {Code: "account_paused", Kind: KindPermanent, Retryable: false, Message: "sending account is paused"},
	"account-paused":      {Code: "account_paused", Kind: KindPermanent, Retryable: false, Message: "sending account is paused"},
	"mail-from-domain-not-verified": {Code: "domain_not_verified", Kind: KindPermanent, Retryable: false, Message: "sending domain is not verified"},
	"throttling":          {Code: "throttling", Kind: KindQuota, Retryable: true, Message: "rate limited by provider"},
	"too-many-requests":   {Code: "throttling", Kind: KindQuota, Retryable: true, Message: "rate limited by provider"},
	"service-unavailable": {Code: "service_unavailable", Kind: KindTransient, Retryable: true, Message: "provider temporarily unavailable"},
	"internal-failure":    {Code: "service_unavailable", Kind: KindTransient, Retryable: true, Message: "provider internal error"},
	"circuit_open":        {Code: "circuit_open", Kind: KindTransient, Retryable: true, Message: "circuit breaker open"},
}

var (
	httpStatusRegex = regexp.MustCompile(`(?i)status[_\s]code[:\s]*(\d{3})`)
	httpPrefixRegex = regexp.MustCompile(`(?i)http[/\d.]*\s*(\d{3})`)
	bracketStatusRegex = regexp.MustCompile(`[\[(](\d{3})[\])]`)
	timeoutRegex    = regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded`)
	networkRegex    = regexp.MustCompile(`(?i)connection refused|no such host|econnreset|broken pipe|network is unreachable`)
)

func extractHTTPStatus(s string) int {
	for _, re := range []*regexp.Regexp{httpStatusRegex, httpPrefixRegex, bracketStatusRegex} {
		if m := re.FindStringSubmatch(s); len(m) >= 2 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 0
}

// Classify maps a raw provider error code (may be empty) and its message to
// an Error. knownCode is checked first (case-insensitive), then HTTP status
// inferred from the message, then keyword heuristics.
func Classify(code, message string) *Error {
	if code != "" {
		if e, ok := knownCodes[strings.ToLower(code)]; ok {
			out := e
			out.OriginalCode = code
			out.OriginalMessage = message
			return &out
		}
	}

	if status := extractHTTPStatus(message); status > 0 {
		return classifyByHTTPStatus(status, code, message)
	}

	if networkRegex.MatchString(message) {
		return &Error{Code: "network", Kind: KindTimeout, Retryable: true, Message: "network error", OriginalCode: code, OriginalMessage: message}
	}
	if timeoutRegex.MatchString(message) {
		return &Error{Code: "timeout", Kind: KindTimeout, Retryable: true, Message: "operation timed out", OriginalCode: code, OriginalMessage: message}
	}

	// Unknown with no hint: conservative, permanent and non-retryable.
	return &Error{Code: "unknown", Kind: KindPermanent, Retryable: false, Message: "unclassified error", OriginalCode: code, OriginalMessage: message}
}

func classifyByHTTPStatus(status int, code, message string) *Error {
	switch {
	case status == 429:
		return &Error{Code: "throttling", Kind: KindQuota, Retryable: true, Message: "rate limited by provider", OriginalCode: code, OriginalMessage: message}
	case status >= 500:
		return &Error{Code: "service_unavailable", Kind: KindTransient, Retryable: true, Message: "provider returned server error", OriginalCode: code, OriginalMessage: message}
	case status >= 400:
		return &Error{Code: "message_rejected", Kind: KindPermanent, Retryable: false, Message: "provider rejected the request", OriginalCode: code, OriginalMessage: message}
	default:
		return &Error{Code: "unknown", Kind: KindPermanent, Retryable: false, Message: "unclassified error", OriginalCode: code, OriginalMessage: message}
	}
}

// Validation builds a validation-kind error for the pre-send gate.
func Validation(code, message string) *Error {
	return &Error{Code: code, Kind: KindValidation, Retryable: false, Message: message}
}

// Permanent builds a permanent, non-retryable error (e.g. "suppressed").
func Permanent(code, message string) *Error {
	return &Error{Code: code, Kind: KindPermanent, Retryable: false, Message: message}
}

// Transient builds a retryable transient error.
func Transient(code, message string) *Error {
	return &Error{Code: code, Kind: KindTransient, Retryable: true, Message: message}
}

// As reports whether err (or a wrapped cause) is a *Error and, if so, sets
// target to it. Thin wrapper over errors.As so callers don't need to import
// both packages just to unwrap a classified error.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// Describe returns the (code, message) pair the send pipeline logs and
// writes to EmailLog/EmailEvent for any error, classified or not: a *Error
// is reported as-is, anything else is classified fresh from its message.
func Describe(err error) (code, message string) {
	if err == nil {
		return "", ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code, classified.Message
	}
	c := Classify("", err.Error())
	return c.Code, c.Message
}

// Quota builds a retryable quota error, optionally carrying a provider
// retry-after hint in Metadata["retry_after_ms"].
func Quota(code, message, retryAfterMS string) *Error {
	e := &Error{Code: code, Kind: KindQuota, Retryable: true, Message: message}
	if retryAfterMS != "" {
		e.Metadata = map[string]string{"retry_after_ms": retryAfterMS}
	}
	return e
}
