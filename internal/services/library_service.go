package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
	"lending/internal/repositories"
)

// ─── Lending Constants ────────────────────────────────────────────────────────

const (
	// LoanPeriodDays is the default number of days between issue date and due date.
	LoanPeriodDays = 14

	// MaxActiveLoans is the number of BORROWED loans a member may hold at once.
	MaxActiveLoans = 5

	// FinePerDay is the overdue fine per calendar day, in cents.
	FinePerDay models.Cents = 50

	// FirstMemberID and FirstBookID seed the id sequences; allocated ids are never reused.
	FirstMemberID = 101
	FirstBookID   = 1

	sequenceMembers = "members"
	sequenceBooks   = "books"
)

// ─── Requests ─────────────────────────────────────────────────────────────────

type CreateBookRequest struct {
	Title       string
	Edition     string
	TotalCopies int
	AuthorIDs   []int64
	CategoryIDs []int64
}

// UpdateBookRequest changes the fields that are set. A different TotalCopies grows or
// shrinks the copy set through AddCopies/RemoveCopies.
type UpdateBookRequest struct {
	Title       *string
	Edition     *string
	TotalCopies *int
}

type CreateMemberRequest struct {
	Name      string
	Address   string
	Email     string
	Phone     string
	StartDate *time.Time
}

// UpdateMemberRequest changes the fields that are set. The member id never changes.
type UpdateMemberRequest struct {
	Name      *string
	Address   *string
	Email     *string
	Phone     *string
	StartDate *time.Time
}

type CreateLibrarianRequest struct {
	Name  string
	Email string
	Phone string
}

// IssueLoanRequest carries the optional dates of a new loan; zero values default to today
// and IssueDate + LoanPeriodDays.
type IssueLoanRequest struct {
	MemberID  int64
	IssueDate *time.Time
	DueDate   *time.Time
}

type CreateEventRequest struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
	EventTime string
	MemberID  *int64
}

// UpdateEventRequest changes the fields that are set. ClearMember detaches the member.
type UpdateEventRequest struct {
	Name        *string
	StartDate   *time.Time
	EndDate     *time.Time
	EventTime   *string
	MemberID    *int64
	ClearMember bool
}

type CreateAccountRequest struct {
	Username    string
	Password    string
	Role        models.UserRole
	MemberID    *int64
	LibrarianID *int64
}

// ReturnResult is the outcome of ReturnLoan: the closed loan and the fine assessed, if any.
type ReturnResult struct {
	Loan *models.Loan `json:"loan"`
	Fine *models.Fine `json:"fine,omitempty"`
}

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService defines the application-level operations of the lending engine. Every
// mutating operation runs as one transaction and takes the caller identity explicitly.
type LibraryService interface {
	// Catalog
	CreateBook(ctx context.Context, caller identity.Caller, req CreateBookRequest) (*models.Book, error)
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	UpdateBook(ctx context.Context, caller identity.Caller, id int64, req UpdateBookRequest) (*models.Book, error)
	DeleteBook(ctx context.Context, caller identity.Caller, id int64) error
	CreateAuthor(ctx context.Context, caller identity.Caller, name string) (*models.Author, error)
	ListAuthors(ctx context.Context) ([]models.Author, error)
	CreateCategory(ctx context.Context, caller identity.Caller, name string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	LinkAuthor(ctx context.Context, caller identity.Caller, bookID, authorID int64) error
	LinkCategory(ctx context.Context, caller identity.Caller, bookID, categoryID int64) error
	CreateMember(ctx context.Context, caller identity.Caller, req CreateMemberRequest) (*models.Member, error)
	GetMember(ctx context.Context, caller identity.Caller, id int64) (*models.Member, error)
	ListMembers(ctx context.Context, caller identity.Caller) ([]models.Member, error)
	UpdateMember(ctx context.Context, caller identity.Caller, id int64, req UpdateMemberRequest) (*models.Member, error)
	CreateLibrarian(ctx context.Context, caller identity.Caller, req CreateLibrarianRequest) (*models.Librarian, error)
	CreateEvent(ctx context.Context, caller identity.Caller, req CreateEventRequest) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	UpdateEvent(ctx context.Context, caller identity.Caller, id int64, req UpdateEventRequest) (*models.Event, error)

	// Copy inventory
	AddCopies(ctx context.Context, caller identity.Caller, bookID int64, count int) ([]int64, error)
	RemoveCopies(ctx context.Context, caller identity.Caller, bookID int64, count int) error
	ListCopies(ctx context.Context, bookID int64) ([]models.BookCopy, error)
	ListCopiesByStatus(ctx context.Context, caller identity.Caller, status models.BookCopyStatus) ([]models.BookCopy, error)
	SetCopyCondition(ctx context.Context, caller identity.Caller, copyID int64, status models.BookCopyStatus) (*models.BookCopy, error)
	Reconcile(ctx context.Context) (*ReconcileReport, error)

	// Loan ledger
	IssueLoan(ctx context.Context, caller identity.Caller, copyID int64, req IssueLoanRequest) (*models.Loan, error)
	IssueLoanForBook(ctx context.Context, caller identity.Caller, bookID int64, req IssueLoanRequest) (*models.Loan, error)
	ReturnLoan(ctx context.Context, caller identity.Caller, loanID int64) (*ReturnResult, error)
	DeleteLoan(ctx context.Context, caller identity.Caller, loanID int64) error
	GetLoan(ctx context.Context, caller identity.Caller, loanID int64) (*models.Loan, error)
	ListLoans(ctx context.Context, caller identity.Caller, memberID *int64) ([]models.Loan, error)
	ListOverdueLoans(ctx context.Context, caller identity.Caller) ([]models.Loan, error)

	// Fines
	PayFine(ctx context.Context, caller identity.Caller, fineID int64) (*models.Fine, error)
	ListFines(ctx context.Context, caller identity.Caller) ([]models.Fine, error)

	// Reservations
	CreateReservation(ctx context.Context, caller identity.Caller, bookID, memberID int64) (*models.Reservation, error)
	CancelReservation(ctx context.Context, caller identity.Caller, reservationID int64) (*models.Reservation, error)
	FulfillReservation(ctx context.Context, caller identity.Caller, reservationID, copyID int64) (*models.Reservation, *models.Loan, error)
	ListReservations(ctx context.Context, caller identity.Caller, bookID *int64) ([]models.Reservation, error)

	// Accounts for the token endpoint
	CreateAccount(ctx context.Context, caller identity.Caller, req CreateAccountRequest) (*models.Account, error)
	BootstrapLibrarian(ctx context.Context, req CreateLibrarianRequest, username, password string) (*models.Librarian, *models.Account, error)
	Authenticate(ctx context.Context, username, password string) (identity.Caller, error)

	// Today returns the service's current calendar date (UTC midnight).
	Today() time.Time
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db          *gorm.DB
	repos       *repositories.Repositories
	now         func() time.Time
	maxAttempts int
	baseDelay   time.Duration
}

// Option configures a LibraryService.
type Option func(*libraryService)

// WithClock replaces the wall clock used to compute "today" at call time.
func WithClock(now func() time.Time) Option {
	return func(s *libraryService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetry sets how many times a conflicting transaction is attempted and the base backoff.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *libraryService) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			s.baseDelay = baseDelay
		}
	}
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(db *gorm.DB, repos *repositories.Repositories, opts ...Option) LibraryService {
	s := &libraryService{
		db:          db,
		repos:       repos,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func (s *libraryService) Today() time.Time {
	return dateOf(s.now())
}

// reader returns a non-transactional handle bound to ctx for plain reads.
func (s *libraryService) reader(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// dateOf truncates t to its calendar date at UTC midnight.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b (negative when b is before a).
func daysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}

// requireLibrarian resolves the caller to an existing librarian record.
func (s *libraryService) requireLibrarian(tx *gorm.DB, caller identity.Caller) (*models.Librarian, error) {
	id, ok := caller.LibrarianID()
	if !ok {
		return nil, ErrNotLibrarian
	}
	librarian, err := s.repos.Librarians.GetByID(tx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotLibrarian
		}
		return nil, err
	}
	return librarian, nil
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, gorm.ErrRecordNotFound)
}

// notFoundAs maps gorm's record-not-found to the given domain sentinel.
func notFoundAs(err, sentinel error) error {
	if isNotFound(err) {
		return sentinel
	}
	return err
}
