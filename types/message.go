package types

import "time"

// Message is a directed message between two students. Rows are immutable
// after insertion; only the sender may delete one, and only the recipient
// may mark it read.
type Message struct {
	// ID is assigned by the database sequence; assignment order is send order.
	ID int64 `json:"id" db:"id"`

	// SenderMatricula is always taken from the verified token, never from
	// client input.
	SenderMatricula    string `json:"sender_matricula" db:"sender_matricula"`
	RecipientMatricula string `json:"recipient_matricula" db:"recipient_matricula"`

	Content string `json:"content" db:"content"`

	// SentAt is server-assigned at insertion.
	SentAt time.Time `json:"sent_at" db:"sent_at"`

	// Read reports whether the recipient has marked the message as read.
	Read bool `json:"read" db:"read"`

	// Display names of the counterparties, populated by list queries via
	// joins; empty on bare rows.
	SenderName    string `json:"sender_name,omitempty" db:"-"`
	RecipientName string `json:"recipient_name,omitempty" db:"-"`
}

// Pagination describes one page of a time-ordered listing. Pages are
// 1-based; TotalPages is ceil(TotalMessages / pageSize).
type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalMessages int  `json:"totalMessages"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
}
