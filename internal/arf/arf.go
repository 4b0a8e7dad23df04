// Package arf parses RFC 5965 Abuse Reporting Format feedback reports.
package arf

import (
	"fmt"
	"mime"
	"mime/multipart"
	"strings"
)

// FeedbackType enumerates the complaint categories a report's
// Feedback-Type header maps into.
type FeedbackType string

const (
	FeedbackAbuse       FeedbackType = "abuse"
	FeedbackFraud       FeedbackType = "fraud"
	FeedbackAuthFailure FeedbackType = "auth-failure"
	FeedbackNotSpam     FeedbackType = "not-spam"
	FeedbackComplaint   FeedbackType = "complaint"
	FeedbackOptOut      FeedbackType = "opt-out"
	FeedbackOther       FeedbackType = "other"
)

// AuthMethod is derived from Auth-Failure / Authentication-Results for
// feedback-type auth-failure reports.
type AuthMethod string

const (
	AuthDKIM  AuthMethod = "dkim"
	AuthSPF   AuthMethod = "spf"
	AuthDMARC AuthMethod = "dmarc"
)

// Report is the parsed form of an ARF message.
type Report struct {
	FeedbackType          FeedbackType
	AuthMethod            AuthMethod
	AuthDomain             string
	SourceIP              string
	UserAgent             string
	AuthenticationResults string
	ArrivalDate           string
	OriginalRecipient     string
	OriginalFrom          string
	OriginalMessageID     string
	OriginalSubject       string
	OriginalMessageExcerpt string
}

// ErrInvalidReport is returned when required headers are missing: a report
// needs at least a feedback-type and the original message headers.
var ErrInvalidReport = fmt.Errorf("arf: invalid report")

const maxOriginalMessageChars = 1000

// Parse extracts the message/feedback-report part (and, if present, the
// text/rfc822-headers part) from a raw multipart/report body.
func Parse(contentType, body string) (*Report, error) {
	feedbackPart, headersPart, original, err := extractParts(contentType, body)
	if err != nil {
		return nil, err
	}

	fields := parseFields(feedbackPart)
	if fields["feedback-type"] == "" {
		return nil, ErrInvalidReport
	}

	headerFields := parseFields(headersPart)
	if headerFields["from"] == "" && headerFields["to"] == "" && headerFields["message-id"] == "" {
		return nil, ErrInvalidReport
	}

	r := &Report{
		FeedbackType:          mapFeedbackType(fields["feedback-type"]),
		SourceIP:              fields["source-ip"],
		UserAgent:             fields["user-agent"],
		AuthenticationResults: fields["authentication-results"],
		ArrivalDate:           fields["arrival-date"],
		OriginalRecipient:     stripTypePrefix(fields["original-rcpt-to"]),
		OriginalFrom:          headerFields["from"],
		OriginalMessageID:     headerFields["message-id"],
		OriginalSubject:       headerFields["subject"],
		OriginalMessageExcerpt: truncate(original, maxOriginalMessageChars),
	}

	if r.FeedbackType == FeedbackAuthFailure {
		r.AuthMethod = deriveAuthMethod(fields["auth-failure"], r.AuthenticationResults)
		r.AuthDomain = domainFromAddress(r.OriginalFrom)
	}

	return r, nil
}

func extractParts(contentType, body string) (feedback, headers, original string, err error) {
	mediaType, params, perr := mime.ParseMediaType(contentType)
	if perr != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return "", "", "", ErrInvalidReport
	}

	mr := multipart.NewReader(strings.NewReader(body), params["boundary"])
	for {
		p, nerr := mr.NextPart()
		if nerr != nil {
			break
		}
		ct := strings.ToLower(p.Header.Get("Content-Type"))
		content := readAll(p)
		switch {
		case strings.HasPrefix(ct, "message/feedback-report"):
			feedback = content
		case strings.HasPrefix(ct, "text/rfc822-headers"), strings.HasPrefix(ct, "message/rfc822"):
			headers = content
			if original == "" {
				original = content
			}
		default:
			if original == "" {
				original = content
			}
		}
	}
	if feedback == "" {
		return "", "", "", ErrInvalidReport
	}
	return feedback, headers, original, nil
}

func readAll(p *multipart.Part) string {
	buf := make([]byte, 0, 2048)
	tmp := make([]byte, 2048)
	for {
		n, err := p.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	return string(buf)
}

func parseFields(block string) map[string]string {
	out := make(map[string]string)
	block = strings.ReplaceAll(block, "\r\n", "\n")
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		out[key] = val
	}
	return out
}

func stripTypePrefix(v string) string {
	if idx := strings.Index(v, ";"); idx >= 0 {
		return strings.TrimSpace(v[idx+1:])
	}
	return v
}

// mapFeedbackType maps the Feedback-Type header to a FeedbackType, with a
// fuzzy substring fallback.
func mapFeedbackType(v string) FeedbackType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "abuse":
		return FeedbackAbuse
	case "fraud":
		return FeedbackFraud
	case "auth-failure":
		return FeedbackAuthFailure
	case "not-spam":
		return FeedbackNotSpam
	case "complaint":
		return FeedbackComplaint
	case "opt-out":
		return FeedbackOptOut
	}

	lower := strings.ToLower(v)
	switch {
	case strings.Contains(lower, "phish"), strings.Contains(lower, "spam"):
		return FeedbackAbuse
	case strings.Contains(lower, "auth"):
		return FeedbackAuthFailure
	case strings.Contains(lower, "unsubscribe"):
		return FeedbackOptOut
	default:
		return FeedbackOther
	}
}

func deriveAuthMethod(authFailureField, authResults string) AuthMethod {
	lower := strings.ToLower(authFailureField + " " + authResults)
	switch {
	case strings.Contains(lower, "dkim"):
		return AuthDKIM
	case strings.Contains(lower, "spf"):
		return AuthSPF
	case strings.Contains(lower, "dmarc"):
		return AuthDMARC
	default:
		return ""
	}
}

func domainFromAddress(addr string) string {
	if idx := strings.LastIndex(addr, "@"); idx >= 0 {
		return strings.Trim(addr[idx+1:], "<> \t")
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
