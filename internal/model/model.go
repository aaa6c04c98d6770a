package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Application represents the applications table
type Application struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationNumber *string    `gorm:"type:varchar(20);uniqueIndex" json:"application_number"`
	EntityID          uint64     `gorm:"not null;index" json:"entity_id"`
	PermitTypeID      uint       `gorm:"not null;index" json:"permit_type_id"`
	Status            string     `gorm:"type:varchar(32);not null;index" json:"status"`
	CreatorID         uint64     `gorm:"not null" json:"creator_id"`
	AssessorID        *uint64    `json:"assessor_id"`
	ApproverID        *uint64    `json:"approver_id"`
	RejectionReason   *string    `gorm:"type:text" json:"rejection_reason"`
	PermitDocumentURL *string    `gorm:"type:varchar(512)" json:"permit_document_url"`
	ApprovedAt        *time.Time `json:"approved_at"`
	RejectedAt        *time.Time `json:"rejected_at"`
	PaidAt            *time.Time `json:"paid_at"`
	IssuedAt          *time.Time `json:"issued_at"`
	ReleasedAt        *time.Time `json:"released_at"`
	Version           uint       `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	PermitType   PermitType             `gorm:"foreignKey:PermitTypeID;constraint:OnDelete:RESTRICT" json:"-"`
	Parameters   []ApplicationParameter `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"parameters,omitempty"`
	AssessedFees []AssessedFee          `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"assessed_fees,omitempty"`
	Payments     []Payment              `gorm:"foreignKey:ApplicationID;constraint:OnDelete:RESTRICT" json:"payments,omitempty"`
}

// ApplicationParameter represents the application_parameters table
type ApplicationParameter struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID uint64 `gorm:"not null;index" json:"application_id"`
	Position      int    `gorm:"not null" json:"position"`
	ParamName     string `gorm:"type:varchar(100);not null" json:"param_name"`
	ParamValue    string `gorm:"type:varchar(255);not null" json:"param_value"`
}

// AssessedFee represents the assessed_fees table. FeeName and CategoryName
// are snapshots, later catalog edits do not change an assessment.
type AssessedFee struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID  uint64          `gorm:"not null;index" json:"application_id"`
	FeeID          *uint           `json:"fee_id"`
	FeeName        string          `gorm:"type:varchar(255);not null" json:"fee_name"`
	CategoryName   string          `gorm:"type:varchar(255);not null" json:"category_name"`
	AssessedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"assessed_amount"`
	Position       int             `gorm:"not null" json:"position"`
	Locked         bool            `gorm:"not null;default:false" json:"locked"`
}

// Payment represents the payments table
type Payment struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID     uint64          `gorm:"not null;index;uniqueIndex:idx_payment_idempotency,priority:1" json:"application_id"`
	OfficialReceiptNo string          `gorm:"type:varchar(100);not null" json:"official_receipt_no"`
	PaymentDate       time.Time       `gorm:"type:date;not null" json:"payment_date"`
	Amount            decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Address           *string         `gorm:"type:varchar(255)" json:"address"`
	RecordedBy        uint64          `gorm:"not null" json:"recorded_by"`
	IdempotencyKey    *string         `gorm:"type:varchar(100);uniqueIndex:idx_payment_idempotency,priority:2" json:"idempotency_key"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Recorder User `gorm:"foreignKey:RecordedBy;constraint:OnDelete:RESTRICT" json:"-"`
}

// Entity represents the entities table
type Entity struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	Address string `gorm:"type:varchar(255)" json:"address"`
}

// User represents the users table. Roles is a comma separated list of role names.
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"username"`
	FullName     string    `gorm:"type:varchar(255);not null" json:"full_name"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Roles        string    `gorm:"type:varchar(255);not null" json:"roles"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FeeCategory represents the fee_categories table
type FeeCategory struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`

	Fees []Fee `gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT" json:"fees,omitempty"`
}

// Fee represents the fees table
type Fee struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID    uint            `gorm:"not null;index" json:"category_id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	DefaultAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"default_amount"`

	Category FeeCategory `gorm:"foreignKey:CategoryID" json:"-"`
}

// PermitType represents the permit_types table
type PermitType struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name   string `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Active bool   `gorm:"not null;default:true" json:"active"`

	Rules []PermitTypeRule `gorm:"foreignKey:PermitTypeID;constraint:OnDelete:CASCADE" json:"rules,omitempty"`
}

// PermitTypeRule represents the permit_type_rules table. A NULL formula
// means the fee's default amount.
type PermitTypeRule struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	PermitTypeID   uint           `gorm:"not null;index" json:"permit_type_id"`
	FeeID          uint           `gorm:"not null" json:"fee_id"`
	AttributeName  *string        `gorm:"type:varchar(100)" json:"attribute_name"`
	AttributeValue *string        `gorm:"type:varchar(255)" json:"attribute_value"`
	Formula        datatypes.JSON `json:"formula"`
	Position       int            `gorm:"not null;default:0" json:"position"`

	Fee Fee `gorm:"foreignKey:FeeID;constraint:OnDelete:RESTRICT" json:"-"`
}

// ApplicationSequence holds the last application number issued per year.
type ApplicationSequence struct {
	Year      int    `gorm:"primaryKey;autoIncrement:false" json:"year"`
	LastValue uint64 `gorm:"not null" json:"last_value"`
}

// AuditEntry represents the audit_entries table
type AuditEntry struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID       uint64    `gorm:"not null;index" json:"actor_id"`
	ApplicationID uint64    `gorm:"not null;index" json:"application_id"`
	ActionCode    string    `gorm:"type:varchar(64);not null;index" json:"action_code"`
	Description   string    `gorm:"type:text" json:"description"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Application) TableName() string {
	return "applications"
}

func (ApplicationParameter) TableName() string {
	return "application_parameters"
}

func (AssessedFee) TableName() string {
	return "assessed_fees"
}

func (Payment) TableName() string {
	return "payments"
}

func (Entity) TableName() string {
	return "entities"
}

func (User) TableName() string {
	return "users"
}

func (FeeCategory) TableName() string {
	return "fee_categories"
}

func (Fee) TableName() string {
	return "fees"
}

func (PermitType) TableName() string {
	return "permit_types"
}

func (PermitTypeRule) TableName() string {
	return "permit_type_rules"
}

func (ApplicationSequence) TableName() string {
	return "application_sequences"
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}

// Database migration function
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Entity{},
		&User{},
		&FeeCategory{},
		&Fee{},
		&PermitType{},
		&PermitTypeRule{},
		&Application{},
		&ApplicationParameter{},
		&AssessedFee{},
		&Payment{},
		&ApplicationSequence{},
		&AuditEntry{},
	)
}
