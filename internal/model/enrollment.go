package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus mirrors the payment state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "PENDING"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentFailed    EnrollmentStatus = "FAILED"
	EnrollmentRefunded  EnrollmentStatus = "REFUNDED"
)

// Enrollment grants a user permission to attempt an exam.
type Enrollment struct {
	ID               uuid.UUID        `json:"id"`
	UserID           int              `json:"userId"`
	ExamID           uuid.UUID        `json:"examId"`
	Status           EnrollmentStatus `json:"status"`
	PaymentReference string           `json:"paymentReference,omitempty"`
	Amount           int64            `json:"amount"`
	PaidAt           *time.Time       `json:"paidAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// PaymentWebhook is the subset of a Paystack-style webhook body the service reads.
type PaymentWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}
