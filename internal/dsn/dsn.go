// Package dsn parses RFC 3464 Delivery Status Notifications and classifies
// per-recipient bounce severity.
package dsn

import (
	"fmt"
	"mime"
	"mime/multipart"
	"regexp"
	"strconv"
	"strings"
)

// BounceType mirrors the three-way severity bucket enhanced status codes
// classify into.
type BounceType string

const (
	BounceHard        BounceType = "hard"
	BounceSoft        BounceType = "soft"
	BounceDelivered   BounceType = "delivered"
	BounceUndetermined BounceType = "undetermined"
)

func (b BounceType) severity() int {
	switch b {
	case BounceHard:
		return 3
	case BounceSoft:
		return 2
	case BounceUndetermined:
		return 1
	default:
		return 0
	}
}

// StatusCode is the parsed RFC 3463 enhanced status code (e.g. "5.1.1").
type StatusCode struct {
	Class   int
	Subject int
	Detail  int
}

func (s StatusCode) String() string { return fmt.Sprintf("%d.%d.%d", s.Class, s.Subject, s.Detail) }

// RecipientStatus is a single per-recipient block of a DSN.
type RecipientStatus struct {
	OriginalRecipient string
	FinalRecipient    string
	Action            string
	Status            StatusCode
	BounceType        BounceType
	BounceSubreason   string
	RemoteMTA         string
	DiagnosticCode    string
	LastAttemptDate   string
}

// Report is the parsed form of a DSN message.
type Report struct {
	ReportingMTA        string
	OriginalEnvelopeID  string
	OriginalMessageID   string
	ArrivalDate         string
	PerRecipient        []RecipientStatus
}

// BounceClass returns the max-severity bounce type across all recipients:
// the report's overall class is its worst recipient's class.
func (r *Report) BounceClass() BounceType {
	best := BounceType("")
	bestSeverity := -1
	for _, rcpt := range r.PerRecipient {
		if rcpt.BounceType.severity() > bestSeverity {
			best = rcpt.BounceType
			bestSeverity = rcpt.BounceType.severity()
		}
	}
	if best == "" {
		return BounceUndetermined
	}
	return best
}

// ErrParseFailed is returned when the input cannot be interpreted as a DSN
// at all. Callers may still record the event as an unknown bounce without
// suppressing.
var ErrParseFailed = fmt.Errorf("dsn: parse failed")

// originalRecipientHint marks a body without a usable boundary as a bare
// delivery-status part: any Original-Recipient or Final-Recipient field.
var originalRecipientHint = regexp.MustCompile(`(?i)(Original|Final)-Recipient\s*:`)

// Parse extracts the message/delivery-status part from a raw multipart/report
// body (given its Content-Type header) and classifies each recipient.
func Parse(contentType, body string) (*Report, error) {
	part, err := extractDeliveryStatusPart(contentType, body)
	if err != nil {
		if !originalRecipientHint.MatchString(body) {
			return nil, ErrParseFailed
		}
		part = body
	}
	return parseDeliveryStatus(part)
}

// extractDeliveryStatusPart walks a multipart/report body looking for the
// message/delivery-status part.
func extractDeliveryStatusPart(contentType, body string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return "", ErrParseFailed
	}

	mr := multipart.NewReader(strings.NewReader(body), params["boundary"])
	for {
		p, err := mr.NextPart()
		if err != nil {
			return "", ErrParseFailed
		}
		ct := p.Header.Get("Content-Type")
		if strings.HasPrefix(strings.ToLower(ct), "message/delivery-status") {
			buf := make([]byte, 0, 4096)
			tmp := make([]byte, 4096)
			for {
				n, rerr := p.Read(tmp)
				buf = append(buf, tmp[:n]...)
				if rerr != nil {
					break
				}
			}
			return string(buf), nil
		}
	}
}

// parseDeliveryStatus splits the delivery-status part into per-message
// fields followed by one or more per-recipient blocks separated by blank
// lines.
func parseDeliveryStatus(part string) (*Report, error) {
	blocks := splitBlocks(part)
	if len(blocks) == 0 {
		return nil, ErrParseFailed
	}

	report := &Report{}
	fields := parseFields(blocks[0])
	report.ReportingMTA = stripTypePrefix(fields["reporting-mta"])
	report.ArrivalDate = fields["arrival-date"]
	report.OriginalEnvelopeID = fields["original-envelope-id"]
	report.OriginalMessageID = fields["x-original-message-id"]

	for _, blk := range blocks[1:] {
		f := parseFields(blk)
		if f["final-recipient"] == "" && f["original-recipient"] == "" {
			continue
		}
		rs := RecipientStatus{
			OriginalRecipient: stripTypePrefix(f["original-recipient"]),
			FinalRecipient:    stripTypePrefix(f["final-recipient"]),
			Action:            strings.ToLower(f["action"]),
			RemoteMTA:         stripTypePrefix(f["remote-mta"]),
			DiagnosticCode:    stripTypePrefix(f["diagnostic-code"]),
			LastAttemptDate:   f["last-attempt-date"],
		}
		rs.Status = parseStatusCode(f["status"])
		rs.BounceType = classifyStatus(rs.Status)
		rs.BounceSubreason = classifySubreason(rs.DiagnosticCode)
		report.PerRecipient = append(report.PerRecipient, rs)
	}

	if len(report.PerRecipient) == 0 {
		return nil, ErrParseFailed
	}
	return report, nil
}

func splitBlocks(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	raw := strings.Split(strings.TrimSpace(s), "\n\n")
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if strings.TrimSpace(b) != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseFields(block string) map[string]string {
	out := make(map[string]string)
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

// stripTypePrefix removes an RFC 822 type prefix like "rfc822;" from a
// field value.
func stripTypePrefix(v string) string {
	if idx := strings.Index(v, ";"); idx >= 0 {
		return strings.TrimSpace(v[idx+1:])
	}
	return v
}

func parseStatusCode(v string) StatusCode {
	parts := strings.SplitN(strings.TrimSpace(v), ".", 3)
	if len(parts) != 3 {
		return StatusCode{}
	}
	class, _ := strconv.Atoi(parts[0])
	subject, _ := strconv.Atoi(parts[1])
	detail, _ := strconv.Atoi(parts[2])
	return StatusCode{Class: class, Subject: subject, Detail: detail}
}

// classifyStatus maps an enhanced status code's class digit to a bounce
// type: 5.x.x hard, 4.x.x soft, 2.x.x delivered, else undetermined.
func classifyStatus(s StatusCode) BounceType {
	switch s.Class {
	case 5:
		return BounceHard
	case 4:
		return BounceSoft
	case 2:
		return BounceDelivered
	default:
		return BounceUndetermined
	}
}

var (
	userHintRegex   = regexp.MustCompile(`(?i)user unknown|no such user|mailbox not found|unknown user|no mailbox|invalid recipient`)
	domainHintRegex = regexp.MustCompile(`(?i)no such domain|domain not found|host not found`)
	mailboxHintRegex = regexp.MustCompile(`(?i)mailbox full|over quota|quota exceeded|insufficient storage|mailbox is full`)
)

// classifySubreason derives a hard-bounce sub-reason from diagnostic text
// keywords (user/domain/mailbox).
func classifySubreason(diagnostic string) string {
	switch {
	case userHintRegex.MatchString(diagnostic):
		return "user_unknown"
	case domainHintRegex.MatchString(diagnostic):
		return "domain_unknown"
	case mailboxHintRegex.MatchString(diagnostic):
		return "mailbox_full"
	default:
		return ""
	}
}
