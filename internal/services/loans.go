package services

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
)

// ─── Loan Ledger ──────────────────────────────────────────────────────────────
//
// A loan moves BORROWED → RETURNED once. OVERDUE is derived on read and does not gate the
// return. Row locks are always taken in the order member → loan → copy → book.

// IssueLoan lends a specific copy to a member.
//
// Steps (all in one transaction):
//  1. Resolve the caller to a librarian record.
//  2. Lock the member row, serializing concurrent quota checks for that member.
//  3. Lock the copy row and require it to be AVAILABLE.
//  4. Require fewer than MaxActiveLoans BORROWED loans for the member.
//  5. Create the loan and mark the copy BORROWED, taking one from the book's counter.
func (s *libraryService) IssueLoan(ctx context.Context, caller identity.Caller, copyID int64, req IssueLoanRequest) (*models.Loan, error) {
	var loan *models.Loan
	err := s.transact(ctx, "IssueLoan", func(tx *gorm.DB) error {
		issued, err := s.issueLoanTx(tx, caller, req, func(tx *gorm.DB) (*models.BookCopy, error) {
			copy, err := s.repos.Copies.GetByIDForUpdate(tx, copyID)
			if err != nil {
				return nil, notFoundAs(err, ErrCopyNotFound)
			}
			return copy, nil
		})
		if err != nil {
			return err
		}
		loan = issued
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] IssueLoan: copy %d / member %d by %s: %v", copyID, req.MemberID, caller, err)
		return nil, err
	}
	log.Printf("[INFO] IssueLoan: loan %d created for member %d / copy %d, due %s", loan.ID, loan.MemberID, loan.CopyID, loan.DueDate.Format("2006-01-02"))
	return loan, nil
}

// IssueLoanForBook lends any AVAILABLE copy of the book, failing with ErrCopyUnavailable
// when every copy is out.
func (s *libraryService) IssueLoanForBook(ctx context.Context, caller identity.Caller, bookID int64, req IssueLoanRequest) (*models.Loan, error) {
	var loan *models.Loan
	err := s.transact(ctx, "IssueLoanForBook", func(tx *gorm.DB) error {
		issued, err := s.issueLoanTx(tx, caller, req, func(tx *gorm.DB) (*models.BookCopy, error) {
			if _, err := s.repos.Books.GetByID(tx, bookID); err != nil {
				return nil, notFoundAs(err, ErrBookNotFound)
			}
			copy, err := s.repos.Copies.FindAvailableForUpdate(tx, bookID)
			if err != nil {
				return nil, notFoundAs(err, ErrCopyUnavailable)
			}
			return copy, nil
		})
		if err != nil {
			return err
		}
		loan = issued
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] IssueLoanForBook: book %d / member %d by %s: %v", bookID, req.MemberID, caller, err)
		return nil, err
	}
	log.Printf("[INFO] IssueLoanForBook: loan %d created for member %d / copy %d of book %d", loan.ID, loan.MemberID, loan.CopyID, bookID)
	return loan, nil
}

// issueLoanTx holds the precondition checks and writes shared by every way of issuing a loan.
// lockCopy must return the copy to lend, locked for update.
func (s *libraryService) issueLoanTx(tx *gorm.DB, caller identity.Caller, req IssueLoanRequest, lockCopy func(tx *gorm.DB) (*models.BookCopy, error)) (*models.Loan, error) {
	librarian, err := s.requireLibrarian(tx, caller)
	if err != nil {
		return nil, err
	}

	issueDate, dueDate, err := s.loanDates(req.IssueDate, req.DueDate)
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Members.GetByIDForUpdate(tx, req.MemberID); err != nil {
		return nil, notFoundAs(err, ErrMemberNotFound)
	}

	copy, err := lockCopy(tx)
	if err != nil {
		return nil, err
	}
	if copy.Status != models.BookCopyStatusAvailable {
		return nil, ErrCopyUnavailable
	}

	active, err := s.repos.Loans.CountActiveByMember(tx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if active >= MaxActiveLoans {
		return nil, ErrLoanLimitExceeded
	}

	loan := &models.Loan{
		CopyID:      copy.ID,
		MemberID:    req.MemberID,
		LibrarianID: librarian.ID,
		IssueDate:   issueDate,
		DueDate:     dueDate,
		Status:      models.LoanStatusBorrowed,
	}
	if err := s.repos.Loans.Create(tx, loan); err != nil {
		return nil, err
	}
	if err := s.markBorrowed(tx, copy); err != nil {
		return nil, err
	}
	return loan, nil
}

// loanDates applies the call-time defaults: today for the issue date and
// issue date + LoanPeriodDays for the due date.
func (s *libraryService) loanDates(issue, due *time.Time) (time.Time, time.Time, error) {
	issueDate := s.Today()
	if issue != nil {
		issueDate = dateOf(*issue)
	}
	dueDate := issueDate.AddDate(0, 0, LoanPeriodDays)
	if due != nil {
		dueDate = dateOf(*due)
	}
	if dueDate.Before(issueDate) {
		return time.Time{}, time.Time{}, invalidInput("due date %s is before issue date %s",
			dueDate.Format("2006-01-02"), issueDate.Format("2006-01-02"))
	}
	return issueDate, dueDate, nil
}

// ReturnLoan closes a loan, releases its copy and assesses an overdue fine.
//
// Steps (all in one transaction):
//  1. Lock the loan row (FOR UPDATE) and check the caller may act on it.
//  2. Guard against double-return.
//  3. Set return_date = today and status = RETURNED.
//  4. Mark the copy AVAILABLE, returning one to the book's counter.
//  5. If returned after the due date, create the fine.
func (s *libraryService) ReturnLoan(ctx context.Context, caller identity.Caller, loanID int64) (*ReturnResult, error) {
	var result *ReturnResult
	err := s.transact(ctx, "ReturnLoan", func(tx *gorm.DB) error {
		loan, err := s.repos.Loans.GetByIDForUpdate(tx, loanID)
		if err != nil {
			return notFoundAs(err, ErrLoanNotFound)
		}
		if err := requireAccessTo(caller, loan.MemberID); err != nil {
			return err
		}
		if loan.Status == models.LoanStatusReturned {
			log.Printf("[WARN] ReturnLoan: loan %d already returned on %s", loanID, loan.ReturnDate)
			return ErrAlreadyReturned
		}

		today := s.Today()
		ok, err := s.repos.Loans.MarkReturned(tx, loan.ID, today)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReturned
		}
		loan.ReturnDate = &today
		loan.Status = models.LoanStatusReturned

		copy, err := s.repos.Copies.GetByIDForUpdate(tx, loan.CopyID)
		if err != nil {
			return err
		}
		if err := s.markAvailable(tx, copy); err != nil {
			return err
		}
		loan.Copy = *copy

		fine, err := s.assess(tx, loan)
		if err != nil {
			return err
		}
		result = &ReturnResult{Loan: loan, Fine: fine}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] ReturnLoan: loan %d by %s: %v", loanID, caller, err)
		return nil, err
	}
	if result.Fine != nil {
		log.Printf("[INFO] ReturnLoan: loan %d returned late, fine %d assessed (%s)", loanID, result.Fine.ID, result.Fine.Amount)
	} else {
		log.Printf("[INFO] ReturnLoan: loan %d returned on time", loanID)
	}
	return result, nil
}

// DeleteLoan is an administrative correction. A BORROWED loan first releases its copy
// (without a fine); fines tied to the loan are removed with it.
func (s *libraryService) DeleteLoan(ctx context.Context, caller identity.Caller, loanID int64) error {
	err := s.transact(ctx, "DeleteLoan", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		loan, err := s.repos.Loans.GetByIDForUpdate(tx, loanID)
		if err != nil {
			return notFoundAs(err, ErrLoanNotFound)
		}
		if loan.Status == models.LoanStatusBorrowed {
			copy, err := s.repos.Copies.GetByIDForUpdate(tx, loan.CopyID)
			if err != nil {
				return err
			}
			if err := s.markAvailable(tx, copy); err != nil {
				return err
			}
		}
		if err := s.repos.Fines.DeleteByLoan(tx, loan.ID); err != nil {
			return err
		}
		return s.repos.Loans.Delete(tx, loan.ID)
	})
	if err != nil {
		log.Printf("[ERROR] DeleteLoan: loan %d by %s: %v", loanID, caller, err)
		return err
	}
	log.Printf("[INFO] DeleteLoan: loan %d deleted", loanID)
	return nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func (s *libraryService) GetLoan(ctx context.Context, caller identity.Caller, loanID int64) (*models.Loan, error) {
	loan, err := s.repos.Loans.GetByID(s.reader(ctx), loanID)
	if err != nil {
		return nil, notFoundAs(err, ErrLoanNotFound)
	}
	if err := requireAccessTo(caller, loan.MemberID); err != nil {
		return nil, err
	}
	return loan, nil
}

// ListLoans returns loans newest first. Librarians see every loan, or one member's when
// memberID is set; members see only their own.
func (s *libraryService) ListLoans(ctx context.Context, caller identity.Caller, memberID *int64) ([]models.Loan, error) {
	db := s.reader(ctx)
	if self, ok := caller.MemberID(); ok {
		if memberID != nil && *memberID != self {
			return nil, ErrNotOwner
		}
		return s.repos.Loans.ListByMember(db, self)
	}
	if !caller.IsLibrarian() {
		return nil, ErrPermission
	}
	if memberID != nil {
		return s.repos.Loans.ListByMember(db, *memberID)
	}
	return s.repos.Loans.List(db)
}

// ListOverdueLoans returns BORROWED loans whose due date is before today.
func (s *libraryService) ListOverdueLoans(ctx context.Context, caller identity.Caller) ([]models.Loan, error) {
	if !caller.IsLibrarian() {
		return nil, ErrNotLibrarian
	}
	return s.repos.Loans.ListDueBefore(s.reader(ctx), s.Today())
}

// requireAccessTo allows librarians and the member who owns the record.
func requireAccessTo(caller identity.Caller, memberID int64) error {
	if caller.CanAccessMember(memberID) {
		return nil
	}
	if caller.IsMember() {
		return ErrNotOwner
	}
	return ErrPermission
}
