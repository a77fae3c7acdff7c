package entity

import "time"

// Quote is a sales quote carrying an approval workflow
type Quote struct {
	ID             int64          `json:"id" db:"id"`
	QuoteNumber    string         `json:"quote_number" db:"quote_number"`
	Title          string         `json:"title" db:"title"`
	CreatedBy      int64          `json:"created_by" db:"created_by"`
	RouteID        *int64         `json:"route_id,omitempty" db:"route_id"`
	ApprovalStatus ApprovalStatus `json:"approval_status" db:"approval_status"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
	Items          []QuoteItem    `json:"items,omitempty" db:"-"`
}

// QuoteItem is a quote line item whose procurement status follows its purchase orders
type QuoteItem struct {
	ID                int64             `json:"id" db:"id"`
	QuoteID           int64             `json:"quote_id" db:"quote_id"`
	Name              string            `json:"name" db:"name"`
	Quantity          int               `json:"quantity" db:"quantity"`
	ProcurementStatus ProcurementStatus `json:"procurement_status" db:"procurement_status"`
	OrderedAt         *time.Time        `json:"ordered_at,omitempty" db:"ordered_at"`
	ReceivedAt        *time.Time        `json:"received_at,omitempty" db:"received_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// PurchaseOrder is an order to a supplier for one or more quote items
type PurchaseOrder struct {
	ID             int64               `json:"id" db:"id"`
	OrderNumber    string              `json:"order_number" db:"order_number"`
	CreatedBy      int64               `json:"created_by" db:"created_by"`
	RouteID        *int64              `json:"route_id,omitempty" db:"route_id"`
	ApprovalStatus ApprovalStatus      `json:"approval_status" db:"approval_status"`
	Status         OrderStatus         `json:"status" db:"status"`
	OrderDate      *string             `json:"order_date,omitempty" db:"order_date"`
	OrderedAt      *time.Time          `json:"ordered_at,omitempty" db:"ordered_at"`
	Notes          string              `json:"notes" db:"notes"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
	Items          []PurchaseOrderItem `json:"items,omitempty" db:"-"`
}

// PurchaseOrderItem links a purchase order to a quote item it orders
type PurchaseOrderItem struct {
	ID              int64 `json:"id" db:"id"`
	PurchaseOrderID int64 `json:"purchase_order_id" db:"purchase_order_id"`
	QuoteItemID     int64 `json:"quote_item_id" db:"quote_item_id"`
	Quantity        int   `json:"quantity" db:"quantity"`
}
