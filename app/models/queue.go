package models

// NotificationKind selects the mail template a worker renders.
type NotificationKind string

const (
	NotifyThankYou     NotificationKind = "thank_you"
	NotifyContactOwner NotificationKind = "contact_owner"
	NotifyContactReply NotificationKind = "contact_reply"
)

// NotificationMessage is the SQS payload for outgoing mail. Each message
// stands for exactly one mail so a redelivery never repeats a sent one.
type NotificationMessage struct {
	Kind      NotificationKind `json:"kind"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Message   string           `json:"message,omitempty"`
	VisitorID int64            `json:"visitor_id,omitempty"`
}
