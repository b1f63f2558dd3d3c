package services

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
	"lending/internal/repositories"
	"lending/internal/testutil"
)

func TestMain(m *testing.M) {
	passwordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// fixture is a service over a fresh SQLite database with one librarian already registered.
type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	repos     *repositories.Repositories
	svc       LibraryService
	clock     *testutil.Clock
	librarian identity.Caller
}

var emailSeq atomic.Int64

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewSQLiteDB(t))
}

// newFixtureOn builds the fixture over an already migrated database.
func newFixtureOn(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	repos := repositories.New(db)
	clock := testutil.NewClock(testutil.Date(2024, time.March, 1))
	svc := NewLibraryService(db, repos, WithClock(clock.Now), WithRetry(10, time.Millisecond))

	f := &fixture{t: t, ctx: context.Background(), db: db, repos: repos, svc: svc, clock: clock}
	lib, _, err := svc.BootstrapLibrarian(f.ctx, CreateLibrarianRequest{
		Name:  "Head Librarian",
		Email: f.uniqueEmail("head"),
	}, fmt.Sprintf("head%d", emailSeq.Add(1)), "correct horse")
	require.NoError(t, err)
	f.librarian = identity.Librarian(lib.ID)
	return f
}

func (f *fixture) uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s%d@example.org", prefix, emailSeq.Add(1))
}

func (f *fixture) member(name string) *models.Member {
	f.t.Helper()
	m, err := f.svc.CreateMember(f.ctx, f.librarian, CreateMemberRequest{Name: name, Email: f.uniqueEmail("m")})
	require.NoError(f.t, err)
	return m
}

func (f *fixture) book(title string, copies int) *models.Book {
	f.t.Helper()
	b, err := f.svc.CreateBook(f.ctx, f.librarian, CreateBookRequest{Title: title, TotalCopies: copies})
	require.NoError(f.t, err)
	return b
}

func (f *fixture) copies(bookID int64) []models.BookCopy {
	f.t.Helper()
	copies, err := f.svc.ListCopies(f.ctx, bookID)
	require.NoError(f.t, err)
	return copies
}

func (f *fixture) reload(bookID int64) *models.Book {
	f.t.Helper()
	b, err := f.svc.GetBook(f.ctx, bookID)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) issue(copyID, memberID int64) *models.Loan {
	f.t.Helper()
	loan, err := f.svc.IssueLoan(f.ctx, f.librarian, copyID, IssueLoanRequest{MemberID: memberID})
	require.NoError(f.t, err)
	return loan
}

// requireCounterInvariant checks available_copies == total_copies - borrowed copies, and that
// each BORROWED copy has exactly one BORROWED loan.
func (f *fixture) requireCounterInvariant(bookID int64) {
	f.t.Helper()
	book := f.reload(bookID)
	copies := f.copies(bookID)
	borrowed := 0
	for _, c := range copies {
		active, err := f.repos.Loans.CountActiveByCopy(f.db, c.ID)
		require.NoError(f.t, err)
		if c.Status == models.BookCopyStatusBorrowed {
			borrowed++
			require.EqualValues(f.t, 1, active, "copy %d is BORROWED", c.ID)
		} else {
			require.EqualValues(f.t, 0, active, "copy %d is %s", c.ID, c.Status)
		}
	}
	require.Equal(f.t, len(copies), book.TotalCopies)
	require.Equal(f.t, book.TotalCopies-borrowed, book.AvailableCopies)
}
