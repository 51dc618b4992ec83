package models

import (
	"time"

	"github.com/google/uuid"
)

// Report is an uploaded result document for an order. Immutable once
// created except for the delivered flag and timestamp.
type Report struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	FileKey     string    `json:"file_key"`
	FileName    string    `json:"file_name"`
	UploadedBy  string    `json:"uploaded_by"`
	Delivered   bool      `json:"delivered"`
	DeliveredAt time.Time `json:"delivered_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
}
