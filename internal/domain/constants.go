package domain

const (
	RoleAdmin  = "ADMIN"
	RoleSchool = "SCHOOL"
)

// PaymentStatus is the local lifecycle of an order's payment.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusSuccess PaymentStatus = "success"
	StatusFailed  PaymentStatus = "failed"
	StatusExpired PaymentStatus = "expired"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusExpired
}

func (s PaymentStatus) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// Outcome records what a webhook delivery did to the order it targeted.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAnomaly   Outcome = "anomaly" // conflicting delivery for a terminal order
	OutcomeIgnored   Outcome = "ignored" // intermediate gateway status, nothing to apply
	OutcomeNotFound  Outcome = "not_found"
	OutcomeRejected  Outcome = "rejected"
)

const (
	EventStatusChanged = "payment.status_changed"
)

// Sort keys accepted by the transaction listing.
var TransactionSortFields = []string{"created_at", "payment_time", "transaction_amount", "order_amount", "status"}
