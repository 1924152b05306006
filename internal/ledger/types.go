package ledger

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies what produced an award.
type SourceType string

const (
	SourceScan       SourceType = "SCAN"
	SourceManual     SourceType = "MANUAL"
	SourcePromo      SourceType = "PROMO"
	SourceAdjustment SourceType = "ADJUSTMENT"
)

// ValidSourceTypes lists the accepted source types in display order.
var ValidSourceTypes = []SourceType{SourceScan, SourceManual, SourcePromo, SourceAdjustment}

// Valid reports whether s is one of ValidSourceTypes.
func (s SourceType) Valid() bool {
	for _, v := range ValidSourceTypes {
		if s == v {
			return true
		}
	}
	return false
}

// ParseSourceType accepts any letter case ("scan", "Scan", "SCAN").
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown source type %q: must be one of %v", s, ValidSourceTypes)
	}
	return st, nil
}

// ActivityType classifies an activity record.
type ActivityType string

const (
	ActivityEarn   ActivityType = "earn"
	ActivityRedeem ActivityType = "redeem"
	ActivityAdjust ActivityType = "adjust"
)

// ActivityTypeFor maps an award source to the activity type it records.
// Administrative corrections are logged as adjustments; everything else earns.
func ActivityTypeFor(src SourceType) ActivityType {
	if src == SourceAdjustment {
		return ActivityAdjust
	}
	return ActivityEarn
}

// EnrollmentStatus is the soft lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "active"
	EnrollmentInactive EnrollmentStatus = "inactive"
)

// DefaultTier is assigned to new cards when the program declares none.
const DefaultTier = "STANDARD"

// Business is a merchant running one or more loyalty programs.
type Business struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Program is a business's loyalty program.
type Program struct {
	ID          string `json:"id" yaml:"id"`
	BusinessID  string `json:"businessId" yaml:"business"`
	Name        string `json:"name" yaml:"name"`
	DefaultTier string `json:"defaultTier" yaml:"default_tier"`
}

// Enrollment is a customer's membership in a program.
// At most one exists per (CustomerID, ProgramID).
type Enrollment struct {
	CustomerID     string           `json:"customerId"`
	ProgramID      string           `json:"programId"`
	BusinessID     string           `json:"businessId"`
	Status         EnrollmentStatus `json:"status"`
	PointsCache    int64            `json:"pointsCache"`
	EnrolledAt     time.Time        `json:"enrolledAt"`
	LastActivityAt time.Time        `json:"lastActivityAt,omitzero"`
}

// Active reports whether the enrollment may receive awards.
func (e Enrollment) Active() bool {
	return e.Status == EnrollmentActive
}

// Card carries the balance shown to the customer for one enrollment.
type Card struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	BusinessID string    `json:"businessId"`
	ProgramID  string    `json:"programId"`
	CardNumber string    `json:"cardNumber"`
	Tier       string    `json:"tier"`
	Points     int64     `json:"points"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Activity is an immutable audit record for one balance change.
type Activity struct {
	ID             string       `json:"id"`
	CardID         string       `json:"cardId"`
	Type           ActivityType `json:"type"`
	SourceType     SourceType   `json:"sourceType"`
	Delta          int64        `json:"delta"`
	BalanceAfter   int64        `json:"balanceAfter"`
	Description    string       `json:"description"`
	IdempotencyKey string       `json:"idempotencyKey"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// AwardRequest asks the award engine to credit points once per key.
type AwardRequest struct {
	CustomerID     string     `json:"customerId" yaml:"customer"`
	BusinessID     string     `json:"businessId" yaml:"business"`
	ProgramID      string     `json:"programId" yaml:"program"`
	Points         int64      `json:"points" yaml:"points"`
	SourceType     SourceType `json:"sourceType" yaml:"source"`
	Description    string     `json:"description" yaml:"description"`
	IdempotencyKey string     `json:"idempotencyKey" yaml:"key"`
}

// AwardResult is the outcome of a successful or replayed award.
type AwardResult struct {
	Success    bool   `json:"success"`
	CardID     string `json:"cardId"`
	NewBalance int64  `json:"newBalance"`
	Duplicate  bool   `json:"duplicate"`

	// CardCreated is set when this award provisioned the card.
	CardCreated bool `json:"-"`
}

// Balance is the read model consumed by dashboards and the customer UI.
type Balance struct {
	CardID       string `json:"cardId"`
	Points       int64  `json:"points"`
	Tier         string `json:"tier"`
	CardNumber   string `json:"cardNumber"`
	ProgramName  string `json:"programName"`
	BusinessName string `json:"businessName"`
}

// EventPointsAwarded is the type of the change event emitted after an award.
const EventPointsAwarded = "POINTS_AWARDED"

// ChangeEvent is emitted after an award commits. Consumers must treat
// NewBalance as the balance and never re-apply PointsAdded.
type ChangeEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	CustomerID  string    `json:"customerId"`
	BusinessID  string    `json:"businessId"`
	ProgramID   string    `json:"programId"`
	CardID      string    `json:"cardId"`
	PointsAdded int64     `json:"pointsAdded"`
	NewBalance  int64     `json:"newBalance"`
	Timestamp   time.Time `json:"timestamp"`
}
