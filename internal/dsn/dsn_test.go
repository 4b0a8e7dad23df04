package dsn

import "testing"

const sampleDSN = `Reporting-MTA: dns;mail.example.com
Arrival-Date: Mon, 1 Jan 2024 00:00:00 +0000

Original-Recipient: rfc822;bob@example.com
Final-Recipient: rfc822;bob@example.com
Action: failed
Status: 5.1.1
Diagnostic-Code: smtp; 550 5.1.1 user unknown
Last-Attempt-Date: Mon, 1 Jan 2024 00:00:05 +0000`

func TestParse_HardBounce(t *testing.T) {
	report, err := Parse("", sampleDSN)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if report.ReportingMTA != "mail.example.com" {
		t.Errorf("ReportingMTA = %q", report.ReportingMTA)
	}
	if len(report.PerRecipient) != 1 {
		t.Fatalf("expected 1 recipient, got %d", len(report.PerRecipient))
	}
	rcpt := report.PerRecipient[0]
	if rcpt.FinalRecipient != "bob@example.com" {
		t.Errorf("FinalRecipient = %q", rcpt.FinalRecipient)
	}
	if rcpt.BounceType != BounceHard {
		t.Errorf("BounceType = %q, want hard", rcpt.BounceType)
	}
	if rcpt.BounceSubreason != "user_unknown" {
		t.Errorf("BounceSubreason = %q", rcpt.BounceSubreason)
	}
	if report.BounceClass() != BounceHard {
		t.Errorf("BounceClass() = %q, want hard", report.BounceClass())
	}
}

func TestParse_SoftBounce(t *testing.T) {
	body := `Reporting-MTA: dns;mail.example.com

Final-Recipient: rfc822;full@example.com
Action: delayed
Status: 4.2.2
Diagnostic-Code: smtp; 452 mailbox full`

	report, err := Parse("", body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if report.PerRecipient[0].BounceType != BounceSoft {
		t.Errorf("BounceType = %q, want soft", report.PerRecipient[0].BounceType)
	}
}

func TestParse_NoHintFails(t *testing.T) {
	_, err := Parse("", "this is not a dsn at all")
	if err != ErrParseFailed {
		t.Errorf("expected ErrParseFailed, got %v", err)
	}
}

func TestReport_BounceClass_TakesMaxSeverity(t *testing.T) {
	report := &Report{PerRecipient: []RecipientStatus{
		{BounceType: BounceSoft},
		{BounceType: BounceHard},
		{BounceType: BounceDelivered},
	}}
	if report.BounceClass() != BounceHard {
		t.Errorf("BounceClass() = %q, want hard", report.BounceClass())
	}
}
