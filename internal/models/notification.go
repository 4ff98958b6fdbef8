package models

import "time"

// Category classifies a notification by the producer module that created it.
type Category string

const (
	CategoryMarks          Category = "marks"
	CategoryResult         Category = "result"
	CategoryGrievance      Category = "grievance"
	CategoryNotice         Category = "notice"
	CategoryAnnouncement   Category = "announcement"
	CategoryDocumentUpload Category = "document_upload"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryMarks, CategoryResult, CategoryGrievance,
		CategoryNotice, CategoryAnnouncement, CategoryDocumentUpload:
		return true
	}
	return false
}

// Notification is a single durable notification record. IDs are
// server-assigned and monotonic. The Read flag is one-way: once true it
// never reverts to false on any code path.
type Notification struct {
	ID          int       `json:"id"`
	RecipientID int       `json:"recipient_id"`
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	RelatedID   int       `json:"related_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
