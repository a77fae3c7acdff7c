package entity

import "time"

// ProcurementLog is an append-only audit row recording a procurement transition of a quote item
type ProcurementLog struct {
	ID              int64             `json:"id" db:"id"`
	QuoteItemID     int64             `json:"quote_item_id" db:"quote_item_id"`
	PurchaseOrderID *int64            `json:"purchase_order_id,omitempty" db:"purchase_order_id"`
	ActionType      ProcurementAction `json:"action_type" db:"action_type"`
	ActionDate      time.Time         `json:"action_date" db:"action_date"`
	Quantity        int               `json:"quantity" db:"quantity"`
	PerformedBy     int64             `json:"performed_by" db:"performed_by"`
	Notes           string            `json:"notes" db:"notes"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}
