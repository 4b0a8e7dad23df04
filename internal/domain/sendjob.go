package domain

import "time"

// JobRecipient is the embedded recipient descriptor carried on the wire by
// a SendJob.
type JobRecipient struct {
	Email        string `json:"email"`
	RecipientID  string `json:"recipient_id,omitempty"`
	ExternalID   string `json:"external_id,omitempty"`
	CPFCNPJHash  string `json:"cpf_cnpj_hash,omitempty"`
}

// SendJob is the queue-resident work item consumed by the send pipeline
// worker. Its HTML body is not inlined: HTMLRef points back at the
// OutboxEntry that owns the authoritative copy.
type SendJob struct {
	OutboxID    string            `json:"outbox_id"`
	TenantID    string            `json:"tenant_id"`
	RequestID   string            `json:"request_id"`
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	HTMLRef     string            `json:"html_ref"`
	Recipient   JobRecipient      `json:"recipient"`
	CC          []string          `json:"cc,omitempty"`
	BCC         []string          `json:"bcc,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Attempt     int               `json:"attempt"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
}
