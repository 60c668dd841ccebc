// Package domain contains the canonical billing entities every upstream
// record is normalized into.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// InvoiceStatus represents the derived invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusPending InvoiceStatus = "pending"
)

// Invoice is the canonical invoice entity. Instances are produced by the
// normalizers and are read-only within the core; only status transitions
// mutate them (pending -> paid on matched payment, pending -> cancelled on
// auto-void, both applied at the billing record level).
type Invoice struct {
	ID     string `json:"id"`
	Number string `json:"number"`

	PatientName string `json:"patientName"`
	// PatientID is the display-friendly id (P123...). Empty when no
	// friendly id could be resolved; an opaque upstream id is never
	// shown to a cashier.
	PatientID string `json:"patientId"`
	// InternalPatientID is the raw upstream id, used for lookups only.
	InternalPatientID string `json:"-"`

	Date    time.Time     `json:"date"`
	DueDate time.Time     `json:"dueDate"`
	Status  InvoiceStatus `json:"status"`

	Subtotal           float64 `json:"subtotal"`
	Discount           float64 `json:"discount"`
	DiscountType       string  `json:"discountType,omitempty"`
	DiscountPercentage float64 `json:"discountPercentage,omitempty"`
	Tax                float64 `json:"tax"`
	Total              float64 `json:"total"`

	Items []InvoiceItem `json:"items"`

	GeneratedBy string    `json:"generatedBy,omitempty"`
	GeneratedAt time.Time `json:"generatedAt,omitempty"`
	Notes       string    `json:"notes,omitempty"`

	// CreatedAt keeps the raw upstream value; the cashier queue filter
	// checks it for the "archived" marker.
	CreatedAt string `json:"createdAt,omitempty"`
}

// InvoiceItem is a line on an invoice. Category is free text used for
// taxability and EMR/pharmacy classification.
type InvoiceItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
}

// PaymentMethod enumerates accepted tender types.
type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodCard    PaymentMethod = "card"
	PaymentMethodGCash   PaymentMethod = "gcash"
	PaymentMethodPayMaya PaymentMethod = "paymaya"
	PaymentMethodBank    PaymentMethod = "bank"
)

// PaymentStatus represents payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment is the canonical payment entity. Immutable after creation
// except for deletion.
type Payment struct {
	ID            string `json:"id"`
	InvoiceID     string `json:"invoiceId,omitempty"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`

	PatientName string `json:"patientName"`
	PatientID   string `json:"patientId"`

	Amount   float64 `json:"amount"`
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`

	Method PaymentMethod `json:"method"`
	Status PaymentStatus `json:"status"`

	Date time.Time `json:"date"`
	Time string    `json:"time"`

	Reference    string  `json:"reference,omitempty"`
	CashReceived float64 `json:"cashReceived,omitempty"`
	Change       float64 `json:"change,omitempty"`
	ProcessedBy  string  `json:"processedBy,omitempty"`

	Items []InvoiceItem `json:"items,omitempty"`
}

// Completed reports whether the payment settles an invoice.
func (p Payment) Completed() bool {
	s := strings.ToLower(string(p.Status))
	return s == "completed" || s == "paid"
}

// RecordType tags the origin of a billing record.
type RecordType string

const (
	RecordTypeInvoice  RecordType = "invoice"
	RecordTypePayment  RecordType = "payment"
	RecordTypePharmacy RecordType = "pharmacy"
	RecordTypeService  RecordType = "service"
)

// RecordStatus represents billing record lifecycle states.
type RecordStatus string

const (
	RecordStatusCompleted RecordStatus = "completed"
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusCancelled RecordStatus = "cancelled"
	RecordStatusRefunded  RecordStatus = "refunded"
)

// Terminal reports whether no further transition is defined for the status.
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusCancelled || s == RecordStatusRefunded
}

// BillingRecord is the ledger entity, a superset of invoice and payment
// used for the unified history view. The ledger is the sole owner of
// these records; all mutation goes through its methods.
type BillingRecord struct {
	ID          string            `json:"id" gorm:"primaryKey"`
	Type        RecordType        `json:"type" gorm:"type:text;not null;index"`
	Number      string            `json:"number" gorm:"type:text;index"`
	Description string            `json:"description,omitempty" gorm:"type:text"`
	PatientName string            `json:"patientName" gorm:"type:text"`
	PatientID   string            `json:"patientId" gorm:"type:text;index"`
	Date        time.Time         `json:"date" gorm:"index"`
	Amount      float64           `json:"amount" gorm:"not null;default:0"`
	Status      RecordStatus      `json:"status" gorm:"type:text;not null;index"`
	Subtotal    float64           `json:"subtotal,omitempty" gorm:"default:0"`
	Discount    float64           `json:"discount,omitempty" gorm:"default:0"`
	Tax         float64           `json:"tax,omitempty" gorm:"default:0"`
	Method      string            `json:"method,omitempty" gorm:"type:text"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// TableName sets the database table name for the archive mirror.
func (BillingRecord) TableName() string { return "billing_records" }

// DiscountType enumerates discount value semantics.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypeService    DiscountType = "service"
)

// Discount is external master data consumed by the calculator and the
// catalog. Validity is a pure function of current time and these fields.
type Discount struct {
	Code       string       `json:"code"`
	Type       DiscountType `json:"type"`
	Value      float64      `json:"value"`
	Category   string       `json:"category,omitempty"`
	StartDate  time.Time    `json:"startDate,omitempty"`
	EndDate    time.Time    `json:"endDate,omitempty"`
	IsActive   bool         `json:"isActive"`
	UsageCount int          `json:"usageCount"`
	MaxUsage   *int         `json:"maxUsage,omitempty"`
}
