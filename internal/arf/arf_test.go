package arf

import (
	"fmt"
	"strings"
	"testing"
)

func buildMultipart(boundary string, parts ...[2]string) string {
	var b strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: %s\r\n\r\n%s\r\n", boundary, p[0], p[1])
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String()
}

func TestParse_AbuseComplaint(t *testing.T) {
	boundary := "BOUNDARY1"
	contentType := `multipart/report; report-type=feedback-report; boundary="` + boundary + `"`
	feedback := "Feedback-Type: abuse\r\nUser-Agent: SomeMTA/1.0\r\nSource-IP: 10.0.0.1\r\nOriginal-Rcpt-To: rfc822;carol@example.com\r\n"
	headers := "From: sender@example.com\r\nTo: carol@example.com\r\nSubject: Hi\r\nMessage-ID: <abc@example.com>\r\n"
	body := buildMultipart(boundary,
		[2]string{"text/plain", "complaint notice"},
		[2]string{"message/feedback-report", feedback},
		[2]string{"text/rfc822-headers", headers},
	)

	report, err := Parse(contentType, body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if report.FeedbackType != FeedbackAbuse {
		t.Errorf("FeedbackType = %q, want abuse", report.FeedbackType)
	}
	if report.OriginalRecipient != "carol@example.com" {
		t.Errorf("OriginalRecipient = %q", report.OriginalRecipient)
	}
	if report.OriginalFrom != "sender@example.com" {
		t.Errorf("OriginalFrom = %q", report.OriginalFrom)
	}
}

func TestParse_FuzzyFeedbackTypeFallback(t *testing.T) {
	boundary := "BOUNDARY2"
	contentType := `multipart/report; report-type=feedback-report; boundary="` + boundary + `"`
	feedback := "Feedback-Type: likely-phishing-attempt\r\n"
	headers := "From: a@example.com\r\nMessage-ID: <x@example.com>\r\n"
	body := buildMultipart(boundary,
		[2]string{"message/feedback-report", feedback},
		[2]string{"text/rfc822-headers", headers},
	)

	report, err := Parse(contentType, body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if report.FeedbackType != FeedbackAbuse {
		t.Errorf("FeedbackType = %q, want abuse via fuzzy fallback", report.FeedbackType)
	}
}

func TestParse_MissingFeedbackType_Invalid(t *testing.T) {
	boundary := "BOUNDARY3"
	contentType := `multipart/report; report-type=feedback-report; boundary="` + boundary + `"`
	body := buildMultipart(boundary,
		[2]string{"message/feedback-report", "Arrival-Date: now\r\n"},
	)

	_, err := Parse(contentType, body)
	if err != ErrInvalidReport {
		t.Errorf("expected ErrInvalidReport, got %v", err)
	}
}

func TestParse_AuthFailureDerivesMethodAndDomain(t *testing.T) {
	boundary := "BOUNDARY4"
	contentType := `multipart/report; report-type=feedback-report; boundary="` + boundary + `"`
	feedback := "Feedback-Type: auth-failure\r\nAuth-Failure: dmarc\r\n"
	headers := "From: billing@tenant.example\r\nMessage-ID: <y@example.com>\r\n"
	body := buildMultipart(boundary,
		[2]string{"message/feedback-report", feedback},
		[2]string{"text/rfc822-headers", headers},
	)

	report, err := Parse(contentType, body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if report.AuthMethod != AuthDMARC {
		t.Errorf("AuthMethod = %q, want dmarc", report.AuthMethod)
	}
	if report.AuthDomain != "tenant.example" {
		t.Errorf("AuthDomain = %q", report.AuthDomain)
	}
}
