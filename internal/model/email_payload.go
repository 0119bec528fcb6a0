package model

// EmailPayload is the inbound email content, stored verbatim on the quote draft.
type EmailPayload struct {
	Subject         string   `json:"subject"`
	Body            string   `json:"body"`
	SenderEmail     string   `json:"sender_email"`
	SenderName      string   `json:"sender_name,omitempty"`
	AttachmentTexts []string `json:"attachment_texts,omitempty"`
}
