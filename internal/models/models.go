package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleMember    UserRole = "MEMBER"
	UserRoleLibrarian UserRole = "LIBRARIAN"
)

type BookCopyStatus string

const (
	BookCopyStatusAvailable BookCopyStatus = "AVAILABLE"
	BookCopyStatusBorrowed  BookCopyStatus = "BORROWED"
	BookCopyStatusLost      BookCopyStatus = "LOST"
	BookCopyStatusDamaged   BookCopyStatus = "DAMAGED"
)

// Valid reports whether s is one of the known copy states.
func (s BookCopyStatus) Valid() bool {
	switch s {
	case BookCopyStatusAvailable, BookCopyStatusBorrowed, BookCopyStatusLost, BookCopyStatusDamaged:
		return true
	}
	return false
}

type LoanStatus string

const (
	LoanStatusBorrowed LoanStatus = "BORROWED"
	LoanStatusReturned LoanStatus = "RETURNED"
	// LoanStatusOverdue is never persisted; it is derived for Borrowed loans past their due date.
	LoanStatusOverdue LoanStatus = "OVERDUE"
)

type FineStatus string

const (
	FineStatusUnpaid FineStatus = "UNPAID"
	FineStatusPaid   FineStatus = "PAID"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusFulfilled ReservationStatus = "FULFILLED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// Cents is a currency amount stored as an integer number of cents.
type Cents int64

func (c Cents) String() string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, int64(c)/100, int64(c)%100)
}

// MarshalJSON renders the amount as a two-decimal string, e.g. "1.50".
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

type Book struct {
	ID              int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title           string     `gorm:"size:100;not null" json:"title"`
	Edition         string     `gorm:"size:50;not null;default:''" json:"edition"`
	TotalCopies     int        `gorm:"not null;default:0;check:chk_books_total,total_copies >= 0" json:"total_copies"`
	AvailableCopies int        `gorm:"not null;default:0;check:chk_books_available,available_copies >= 0 AND available_copies <= total_copies" json:"available_copies"`
	Authors         []Author   `gorm:"many2many:book_authors;" json:"authors,omitempty"`
	Categories      []Category `gorm:"many2many:book_categories;" json:"categories,omitempty"`
	// Deleted books stay behind for the loans and reservations that reference them.
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Author struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:50;not null" json:"name"`
}

type Category struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:50;not null" json:"name"`
}

type BookCopy struct {
	ID     int64          `gorm:"primaryKey" json:"id"`
	BookID int64          `gorm:"not null;index" json:"book_id"`
	Book   Book           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Status BookCopyStatus `gorm:"size:20;not null;index" json:"status"`
	// Removed copies are soft-deleted so their loan history, and fines, survive.
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Member struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string    `gorm:"size:50;not null" json:"name"`
	Address   string    `gorm:"size:50" json:"address"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email_address"`
	Phone     string    `gorm:"size:15" json:"phone_number"`
	StartDate time.Time `gorm:"type:date;not null" json:"start_date"`
}

type Librarian struct {
	ID    int64  `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:50;not null" json:"name"`
	Email string `gorm:"size:255;not null;uniqueIndex" json:"email_address"`
	Phone string `gorm:"size:15" json:"phone_number"`
}

// Loan records one copy lent to one member. At most one BORROWED loan may exist per copy,
// enforced by the uniq_active_loan partial index.
type Loan struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	CopyID      int64      `gorm:"not null;index;uniqueIndex:uniq_active_loan,where:status = 'BORROWED'" json:"copy_id"`
	Copy        BookCopy   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	MemberID    int64      `gorm:"not null;index" json:"member_id"`
	Member      Member     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	LibrarianID int64      `gorm:"not null;index" json:"librarian_id"`
	Librarian   Librarian  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	IssueDate   time.Time  `gorm:"type:date;not null" json:"issue_date"`
	DueDate     time.Time  `gorm:"type:date;not null;index" json:"due_date"`
	ReturnDate  *time.Time `gorm:"type:date" json:"return_date"`
	Status      LoanStatus `gorm:"size:20;not null;index" json:"status"`
}

// StatusOn reports the loan status as seen on the given day, deriving OVERDUE for
// borrowed loans whose due date has passed.
func (l *Loan) StatusOn(today time.Time) LoanStatus {
	if l.Status == LoanStatusBorrowed && l.DueDate.Before(today) {
		return LoanStatusOverdue
	}
	return l.Status
}

type Fine struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	LoanID        int64      `gorm:"not null;uniqueIndex" json:"loan_id"`
	Loan          Loan       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Amount        Cents      `gorm:"not null" json:"amount"`
	PaymentStatus FineStatus `gorm:"size:20;not null;index" json:"payment_status"`
	PaymentDate   *time.Time `gorm:"type:date" json:"payment_date"`
}

type Reservation struct {
	ID                 int64             `gorm:"primaryKey" json:"id"`
	BookID             int64             `gorm:"not null;index" json:"book_id"`
	Book               Book              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	MemberID           int64             `gorm:"not null;index" json:"member_id"`
	Member             Member            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Status             ReservationStatus `gorm:"size:20;not null;index" json:"status"`
	ReservationDate    time.Time         `gorm:"type:date;not null" json:"reservation_date"`
	ExpectedReturnDate time.Time         `gorm:"type:date;not null" json:"exp_return_date"`
	FulfilledLoanID    *int64            `json:"fulfilled_loan_id,omitempty"`
}

type Event struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:50;not null" json:"name"`
	StartDate   time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate     time.Time `gorm:"type:date;not null" json:"end_date"`
	EventTime   string    `gorm:"size:5;not null" json:"event_time"`
	MemberID    *int64    `gorm:"index" json:"member_id"`
	Member      *Member   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	LibrarianID int64     `gorm:"not null;index" json:"librarian_id"`
	Librarian   Librarian `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// Account holds login credentials for the token endpoint. Exactly one of MemberID and
// LibrarianID is set, matching Role.
type Account struct {
	ID           int64    `gorm:"primaryKey" json:"id"`
	Username     string   `gorm:"size:150;not null;uniqueIndex" json:"username"`
	PasswordHash string   `gorm:"size:255;not null" json:"-"`
	Role         UserRole `gorm:"size:20;not null" json:"role"`
	MemberID     *int64   `json:"member_id,omitempty"`
	LibrarianID  *int64   `json:"librarian_id,omitempty"`
}

// Sequence backs identifiers that must never be reused (books, members).
type Sequence struct {
	Name      string `gorm:"primaryKey;size:50"`
	NextValue int64  `gorm:"not null"`
}

// All lists every persisted model in dependency order, for migrations.
func All() []interface{} {
	return []interface{}{
		&Sequence{},
		&Author{},
		&Category{},
		&Book{},
		&BookCopy{},
		&Member{},
		&Librarian{},
		&Loan{},
		&Fine{},
		&Reservation{},
		&Event{},
		&Account{},
	}
}
