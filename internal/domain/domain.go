package domain

import (
	"time"

	"github.com/fazamuttaqien/permitting/pkg/money"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAssessed        Status = "ASSESSED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusPaid            Status = "PAID"
	StatusIssued          Status = "ISSUED"
	StatusReleased        Status = "RELEASED"
)

var Statuses = []Status{
	StatusPending,
	StatusAssessed,
	StatusPendingApproval,
	StatusApproved,
	StatusRejected,
	StatusPaid,
	StatusIssued,
	StatusReleased,
}

// FeesEditable reports whether individual assessed fee amounts may still be corrected.
func (s Status) FeesEditable() bool {
	return s == StatusAssessed || s == StatusPendingApproval
}

type Application struct {
	ID                uint64
	ApplicationNumber *string
	EntityID          uint64
	PermitTypeID      uint
	PermitTypeName    string
	Status            Status
	CreatorID         uint64
	AssessorID        *uint64
	ApproverID        *uint64
	RejectionReason   *string
	PermitDocumentURL *string
	ApprovedAt        *time.Time
	RejectedAt        *time.Time
	PaidAt            *time.Time
	IssuedAt          *time.Time
	ReleasedAt        *time.Time
	Version           uint
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Parameters   []Parameter
	AssessedFees []AssessedFee
	Payments     []Payment
}

// TotalAssessed is the amount due: the sum of all assessed fee lines.
func (a *Application) TotalAssessed() decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(a.AssessedFees))
	for _, f := range a.AssessedFees {
		amounts = append(amounts, f.AssessedAmount)
	}
	return money.Sum(amounts...)
}

func (a *Application) TotalCollected() decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(a.Payments))
	for _, p := range a.Payments {
		amounts = append(amounts, p.Amount)
	}
	return money.Sum(amounts...)
}

// Balance never reports a negative outstanding amount; any excess is Overpaid.
func (a *Application) Balance() Balance {
	total := a.TotalAssessed()
	collected := a.TotalCollected()

	balance := Balance{
		Total:       total,
		Collected:   collected,
		Outstanding: total.Sub(collected),
		Overpaid:    decimal.Zero,
	}
	if balance.Outstanding.IsNegative() {
		balance.Overpaid = balance.Outstanding.Neg()
		balance.Outstanding = decimal.Zero
	}
	return balance
}

func (a *Application) HasLockedFees() bool {
	for _, f := range a.AssessedFees {
		if f.Locked {
			return true
		}
	}
	return false
}

type Parameter struct {
	Name  string
	Value string
}

type AssessedFee struct {
	ID             uint64
	ApplicationID  uint64
	FeeID          *uint
	FeeName        string
	CategoryName   string
	AssessedAmount decimal.Decimal
	Locked         bool
}

type Payment struct {
	ID                uint64
	ApplicationID     uint64
	OfficialReceiptNo string
	PaymentDate       time.Time
	Amount            decimal.Decimal
	Address           *string
	RecordedBy        uint64
	RecordedByName    string
	IdempotencyKey    *string
	CreatedAt         time.Time
}

type Balance struct {
	Total       decimal.Decimal
	Collected   decimal.Decimal
	Outstanding decimal.Decimal
	Overpaid    decimal.Decimal
}

type Entity struct {
	ID      uint64
	Name    string
	Address string
}

type User struct {
	ID           uint64
	Username     string
	FullName     string
	PasswordHash string
	Roles        []string
}

type FeeCategory struct {
	ID   uint
	Name string
}

// Fee is a fee catalog definition.
type Fee struct {
	ID            uint
	CategoryID    uint
	CategoryName  string
	Name          string
	DefaultAmount decimal.Decimal
}

type PermitType struct {
	ID     uint
	Name   string
	Active bool
}

// FeeRule ties a permit type to a catalog fee. A rule with an attribute only
// applies when the application carries a parameter with that name and value.
type FeeRule struct {
	ID             uint
	PermitTypeID   uint
	FeeID          uint
	AttributeName  *string
	AttributeValue *string
	Formula        *Formula
}

type FormulaType string

const (
	FormulaFixed   FormulaType = "fixed"
	FormulaRate    FormulaType = "rate"
	FormulaPerUnit FormulaType = "per_unit"
	FormulaTiered  FormulaType = "tiered"
)

type Formula struct {
	Type   FormulaType      `json:"type"`
	Param  string           `json:"param,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Rate   *decimal.Decimal `json:"rate,omitempty"`
	Min    *decimal.Decimal `json:"min,omitempty"`
	Max    *decimal.Decimal `json:"max,omitempty"`
	Tiers  []Tier           `json:"tiers,omitempty"`
}

type Tier struct {
	UpTo   *decimal.Decimal `json:"up_to,omitempty"`
	Amount decimal.Decimal  `json:"amount"`
}

type AuditEntry struct {
	ID            uint64
	ActorID       uint64
	ApplicationID uint64
	ActionCode    string
	Description   string
	CreatedAt     time.Time
}

const (
	AuditCreate           = "APPLICATION_CREATE"
	AuditDelete           = "APPLICATION_DELETE"
	AuditChangePermitType = "APPLICATION_CHANGE_PERMIT_TYPE"
	AuditAssess           = "APPLICATION_ASSESS"
	AuditFeeUpdate        = "ASSESSED_FEE_UPDATE"
	AuditSubmit           = "APPLICATION_SUBMIT"
	AuditApprove          = "APPLICATION_APPROVE"
	AuditReject           = "APPLICATION_REJECT"
	AuditPayment          = "PAYMENT_RECORD"
	AuditPaid             = "APPLICATION_PAID"
	AuditIssue            = "APPLICATION_ISSUE"
	AuditRelease          = "APPLICATION_RELEASE"
	AuditOverpayment      = "OVERPAYMENT_DETECTED"
)

type EventType string

const (
	EventSubmittedForApproval EventType = "application.submitted_for_approval"
	EventApproved             EventType = "application.approved"
	EventRejected             EventType = "application.rejected"
	EventPaid                 EventType = "application.paid"
	EventIssued               EventType = "application.issued"
	EventReleased             EventType = "application.released"
)

type Event struct {
	ID                string    `json:"id"`
	Type              EventType `json:"type"`
	ApplicationID     uint64    `json:"application_id"`
	ApplicationNumber string    `json:"application_number,omitempty"`
	Status            Status    `json:"status"`
	Message           string    `json:"message,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type JwtCustomClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}
