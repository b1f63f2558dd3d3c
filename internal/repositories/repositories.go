package repositories

import (
	"time"

	"gorm.io/gorm"

	"lending/internal/models"
)

type SequenceRepository interface {
	// Next allocates the next value of the named sequence, starting at start for a new sequence.
	// The sequence row stays locked until db's transaction ends.
	Next(db *gorm.DB, name string, start int64) (int64, error)
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id int64) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id int64) (*models.Book, error)
	UpdateDetails(db *gorm.DB, id int64, title, edition string) error
	Delete(db *gorm.DB, book *models.Book) error
	// AdjustCopies moves total_copies by totalDelta and available_copies by availableDelta
	// in one statement. It reports false when the row would leave the
	// 0 <= available_copies <= total_copies range, in which case nothing changes.
	AdjustCopies(db *gorm.DB, bookID int64, totalDelta, availableDelta int) (bool, error)
	SetCounters(db *gorm.DB, bookID int64, total, available int) error
}

type BookCopyRepository interface {
	Create(db *gorm.DB, copy *models.BookCopy) error
	GetByIDForUpdate(db *gorm.DB, id int64) (*models.BookCopy, error)
	ListByBook(db *gorm.DB, bookID int64) ([]models.BookCopy, error)
	FindAvailableForUpdate(db *gorm.DB, bookID int64) (*models.BookCopy, error)
	LockAvailable(db *gorm.DB, bookID int64, limit int) ([]models.BookCopy, error)
	// TransitionStatus moves a copy from one status to another and reports false when the
	// copy was not in the expected status.
	TransitionStatus(db *gorm.DB, id int64, from, to models.BookCopyStatus) (bool, error)
	DeleteByIDs(db *gorm.DB, ids []int64) error
	DeleteByBook(db *gorm.DB, bookID int64) error
	ListByStatus(db *gorm.DB, status models.BookCopyStatus) ([]models.BookCopy, error)
	CountByBookAndStatus(db *gorm.DB, bookID int64, status models.BookCopyStatus) (int64, error)
	CountByBook(db *gorm.DB, bookID int64) (int64, error)
}

type CatalogRepository interface {
	CreateAuthor(db *gorm.DB, author *models.Author) error
	ListAuthors(db *gorm.DB) ([]models.Author, error)
	GetAuthorsByIDs(db *gorm.DB, ids []int64) ([]models.Author, error)
	CreateCategory(db *gorm.DB, category *models.Category) error
	ListCategories(db *gorm.DB) ([]models.Category, error)
	GetCategoriesByIDs(db *gorm.DB, ids []int64) ([]models.Category, error)
	LinkAuthors(db *gorm.DB, book *models.Book, authors []models.Author) error
	LinkCategories(db *gorm.DB, book *models.Book, categories []models.Category) error
	ClearLinks(db *gorm.DB, book *models.Book) error
}

type MemberRepository interface {
	Create(db *gorm.DB, member *models.Member) error
	List(db *gorm.DB) ([]models.Member, error)
	GetByID(db *gorm.DB, id int64) (*models.Member, error)
	GetByIDForUpdate(db *gorm.DB, id int64) (*models.Member, error)
	Update(db *gorm.DB, member *models.Member) error
}

type LibrarianRepository interface {
	Create(db *gorm.DB, librarian *models.Librarian) error
	GetByID(db *gorm.DB, id int64) (*models.Librarian, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id int64) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id int64) (*models.Loan, error)
	MarkReturned(db *gorm.DB, loanID int64, returnedOn time.Time) (bool, error)
	Delete(db *gorm.DB, id int64) error
	CountActiveByMember(db *gorm.DB, memberID int64) (int64, error)
	CountActiveByCopy(db *gorm.DB, copyID int64) (int64, error)
	List(db *gorm.DB) ([]models.Loan, error)
	ListByMember(db *gorm.DB, memberID int64) ([]models.Loan, error)
	ListDueBefore(db *gorm.DB, day time.Time) ([]models.Loan, error)
	EarliestDueDateForBook(db *gorm.DB, bookID int64) (*time.Time, error)
}

type FineRepository interface {
	Create(db *gorm.DB, fine *models.Fine) error
	GetByIDForUpdate(db *gorm.DB, id int64) (*models.Fine, error)
	GetByLoan(db *gorm.DB, loanID int64) (*models.Fine, error)
	MarkPaid(db *gorm.DB, id int64, paidOn time.Time) (bool, error)
	DeleteByLoan(db *gorm.DB, loanID int64) error
	List(db *gorm.DB) ([]models.Fine, error)
	ListByMember(db *gorm.DB, memberID int64) ([]models.Fine, error)
}

type ReservationRepository interface {
	Create(db *gorm.DB, reservation *models.Reservation) error
	GetByIDForUpdate(db *gorm.DB, id int64) (*models.Reservation, error)
	UpdateStatus(db *gorm.DB, id int64, from, to models.ReservationStatus, fulfilledLoanID *int64) (bool, error)
	List(db *gorm.DB) ([]models.Reservation, error)
	ListByBook(db *gorm.DB, bookID int64) ([]models.Reservation, error)
	ListByMember(db *gorm.DB, memberID int64) ([]models.Reservation, error)
	// CancelActiveByBook cancels every ACTIVE reservation of a book and reports how many.
	CancelActiveByBook(db *gorm.DB, bookID int64) (int64, error)
}

type EventRepository interface {
	Create(db *gorm.DB, event *models.Event) error
	List(db *gorm.DB) ([]models.Event, error)
	GetByIDForUpdate(db *gorm.DB, id int64) (*models.Event, error)
	Update(db *gorm.DB, event *models.Event) error
}

type AccountRepository interface {
	Create(db *gorm.DB, account *models.Account) error
	GetByUsername(db *gorm.DB, username string) (*models.Account, error)
}

// Repositories bundles every repository the service layer needs.
type Repositories struct {
	Sequences    SequenceRepository
	Books        BookRepository
	Copies       BookCopyRepository
	Catalog      CatalogRepository
	Members      MemberRepository
	Librarians   LibrarianRepository
	Loans        LoanRepository
	Fines        FineRepository
	Reservations ReservationRepository
	Events       EventRepository
	Accounts     AccountRepository
	Audit        AuditRepository
}

// New builds the gorm-backed implementation of every repository over db.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Sequences:    NewSequenceRepository(db),
		Books:        NewBookRepository(db),
		Copies:       NewBookCopyRepository(db),
		Catalog:      NewCatalogRepository(db),
		Members:      NewMemberRepository(db),
		Librarians:   NewLibrarianRepository(db),
		Loans:        NewLoanRepository(db),
		Fines:        NewFineRepository(db),
		Reservations: NewReservationRepository(db),
		Events:       NewEventRepository(db),
		Accounts:     NewAccountRepository(db),
		Audit:        NewAuditRepository(db),
	}
}
