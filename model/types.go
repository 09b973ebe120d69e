// Package model defines the core entities of the dispatch platform: users,
// tickets, leads, and the money/audit records tied to them. It holds no
// persistence or business-rule logic — that lives in the per-component
// packages (ticket, lead, finance, ...) and internal/db.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is a user's access level. Rank order (low to high) is USER <
// JUNIOR_ADMIN < JUNIOR_MASTER < MASTER < ADMIN < SYS_ADMIN < SUPER_ADMIN.
type Role string

const (
	RoleUser         Role = "USER"
	RoleJuniorAdmin  Role = "JUNIOR_ADMIN"
	RoleJuniorMaster Role = "JUNIOR_MASTER"
	RoleMaster       Role = "MASTER"
	RoleAdmin        Role = "ADMIN"
	RoleSysAdmin     Role = "SYS_ADMIN"
	RoleSuperAdmin   Role = "SUPER_ADMIN"
)

var roleRank = map[Role]int{
	RoleUser:         0,
	RoleJuniorAdmin:  1,
	RoleJuniorMaster: 2,
	RoleMaster:       3,
	RoleAdmin:        4,
	RoleSysAdmin:     5,
	RoleSuperAdmin:   6,
}

// Rank returns the role's position in the promotion ordering. Unknown roles
// rank below RoleUser so they never satisfy a promotion check.
func (r Role) Rank() int {
	if rank, ok := roleRank[r]; ok {
		return rank
	}
	return -1
}

// User is a platform identity keyed by the external chat-platform numeric ID.
type User struct {
	ID            int64
	Role          Role
	IsActive      bool
	DisplayName   string
	Username      string
	MasterPercent *decimal.Decimal // nil = unset
	AdminPercent  *decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TicketStatus is the ticket lifecycle state (see the state machine in
// SPEC_FULL.md §4.6).
type TicketStatus string

const (
	StatusReadyForWork TicketStatus = "READY_FOR_WORK"
	StatusInWork       TicketStatus = "IN_WORK"
	StatusTaken        TicketStatus = "TAKEN" // legacy synonym of IN_WORK, input-only
	StatusInProgress   TicketStatus = "IN_PROGRESS"
	StatusWaiting      TicketStatus = "WAITING"
	StatusClosed       TicketStatus = "CLOSED"
	StatusCancelled    TicketStatus = "CANCELLED"
)

// TransferStatus tracks the post-close cash-handover sub-state machine.
type TransferStatus string

const (
	TransferNotSent  TransferStatus = "NOT_SENT"
	TransferSent     TransferStatus = "SENT"
	TransferConfirmed TransferStatus = "CONFIRMED"
	TransferRejected TransferStatus = "REJECTED"
)

// TicketCategory is the canonical machine code for the kind of job.
type TicketCategory string

const (
	CategoryPC      TicketCategory = "PC"
	CategoryTV      TicketCategory = "TV"
	CategoryPhone   TicketCategory = "PHONE"
	CategoryPrinter TicketCategory = "PRINTER"
	CategoryOther   TicketCategory = "OTHER"
)

// AdSource is the canonical machine code for how a client found the business.
type AdSource string

const (
	AdSourceAvito        AdSource = "AVITO"
	AdSourceFlyer        AdSource = "LEAFLET"
	AdSourceBusinessCard AdSource = "BUSINESS_CARD"
	AdSourceOther        AdSource = "OTHER"
	AdSourceUnknown      AdSource = "UNKNOWN"
)

// Ticket is a unit of field work, from intake to payout.
type Ticket struct {
	ID       int64
	PublicID string // DDMMYYNN

	Status   TicketStatus
	Category TicketCategory

	ScheduledAt      *time.Time
	PreferredDateDM  string // free-text day/month fallback when no exact datetime is known

	ClientName    string
	ClientAge     *int
	ClientPhone   string
	ClientAddress string

	ProblemText  string
	SpecialNote  string
	AdSource     AdSource

	IsRepeat        bool
	RepeatTicketIDs []int64

	CreatedByAdminID     int64
	AssignedExecutorID   *int64
	JuniorMasterID       *int64

	TakenAt       *time.Time
	InProgressAt  *time.Time

	// Financials — nil until close.
	Revenue *decimal.Decimal
	Expense *decimal.Decimal

	NetProfit            *decimal.Decimal
	ExecutorPercentClose *decimal.Decimal
	AdminPercentClose    *decimal.Decimal
	JuniorPercentClose   *decimal.Decimal
	ExecutorEarned       *decimal.Decimal
	AdminEarned          *decimal.Decimal
	JuniorEarned         *decimal.Decimal
	ProjectTake          *decimal.Decimal

	ClosedAt        *time.Time
	ClosedByUserID  *int64
	ClosedComment   string

	TransferStatus   TransferStatus
	TransferSentAt   *time.Time
	TransferConfirmedByID *int64
	TransferConfirmedAt   *time.Time

	LeadID *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TicketClosePhoto is one photo attached at close time, ordered by insertion.
type TicketClosePhoto struct {
	ID        int64
	TicketID  int64
	FileRef   string
	Position  int
	CreatedAt time.Time
}

// MoneyOpType is the direction of a ledger entry.
type MoneyOpType string

const (
	MoneyOpIncome  MoneyOpType = "INCOME"
	MoneyOpExpense MoneyOpType = "EXPENSE"
)

// TicketMoneyOperation is an append-only ledger entry tied to a ticket.
type TicketMoneyOperation struct {
	ID               uuid.UUID
	TicketID         int64
	OpType           MoneyOpType
	Amount           decimal.Decimal
	CategorySnapshot TicketCategory
	Comment          string
	CreatedAt        time.Time
}

// ProjectTransactionType mirrors MoneyOpType for transactions not tied to a
// ticket.
type ProjectTransactionType string

const (
	ProjectTxIncome  ProjectTransactionType = "INCOME"
	ProjectTxExpense ProjectTransactionType = "EXPENSE"
)

// ProjectTransaction is a manual income/expense entry.
type ProjectTransaction struct {
	ID         int64
	Type       ProjectTransactionType
	Amount     decimal.Decimal
	Category   string
	Comment    string
	OccurredAt time.Time
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProjectShare is a user's current active share-of-cash percent.
type ProjectShare struct {
	ID        int64
	UserID    int64
	Percent   decimal.Decimal
	IsActive  bool
	SetBy     int64
	SetAt     time.Time
}

// LeadStatus is the lead's position in the ingest pipeline.
type LeadStatus string

const (
	LeadStatusNewRaw    LeadStatus = "NEW_RAW"
	LeadStatusNeedInfo  LeadStatus = "NEED_INFO"
	LeadStatusConverted LeadStatus = "CONVERTED"
	LeadStatusSpam      LeadStatus = "SPAM"
)

// Lead is a raw inquiry from an external channel prior to becoming a ticket.
type Lead struct {
	ExternalID uuid.UUID
	Status     LeadStatus

	Source string

	ClientName      string
	ClientPhone     string
	ClientAge       *int
	ProblemText     string
	SpecialNote     string
	AdSource        AdSource
	PreferredAt     *time.Time

	ConvertedTicketID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MasterJuniorLink is an active (or formerly active) master/junior-master
// assignment.
type MasterJuniorLink struct {
	ID             int64
	MasterID       int64
	JuniorMasterID int64
	Percent        decimal.Decimal
	IsActive       bool
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TicketEvent is an append-only history record keyed by ticket.
type TicketEvent struct {
	ID        int64
	TicketID  int64
	ActorID   *int64
	Action    string
	Payload   map[string]any
	CreatedAt time.Time
}

// AuditEvent is an append-only record keyed by (entity_type, entity_id),
// also used for denials and invalid transitions.
type AuditEvent struct {
	ID         uuid.UUID
	ActorID    *int64
	Action     string
	EntityType string
	EntityID   *int64
	Payload    map[string]any
	CreatedAt  time.Time
}

// DailyCounter is the per-date monotonic sequence backing public IDs.
type DailyCounter struct {
	Date    string // DDMMYY, the public ID's date prefix
	Counter int
}

// ProjectSettings holds thresholds and routing overrides read by the ticket
// engine and finance aggregator.
type ProjectSettings struct {
	LargeExpense        decimal.Decimal
	TransferPendingDays int
	RequestsChatID      int64
	EventsChatID        int64
}

// DateRange bounds a period-scoped aggregate query; either end may be nil.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}
