package services

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
	"lending/internal/repositories"
)

// ─── Copy Inventory ───────────────────────────────────────────────────────────
//
// Book.available_copies is a cached count of the book's non-BORROWED copies. Every copy
// status change below adjusts it in the same transaction, through guarded updates that fail
// instead of pushing the counter outside 0..total_copies.

// AddCopies creates count AVAILABLE copies of a book and grows both counters by count.
func (s *libraryService) AddCopies(ctx context.Context, caller identity.Caller, bookID int64, count int) ([]int64, error) {
	if count <= 0 {
		return nil, invalidInput("count must be positive, got %d", count)
	}
	var ids []int64
	err := s.transact(ctx, "AddCopies", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		if _, err := s.repos.Books.GetByIDForUpdate(tx, bookID); err != nil {
			return notFoundAs(err, ErrBookNotFound)
		}
		created, err := s.addCopiesTx(tx, bookID, count)
		if err != nil {
			return err
		}
		ids = created
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] AddCopies: book %d, count %d: %v", bookID, count, err)
		return nil, err
	}
	log.Printf("[INFO] AddCopies: added %d copies to book %d", count, bookID)
	return ids, nil
}

// RemoveCopies deletes count AVAILABLE copies of a book and shrinks both counters by count.
// It fails with ErrInsufficientAvailableCopies, changing nothing, when fewer are AVAILABLE.
func (s *libraryService) RemoveCopies(ctx context.Context, caller identity.Caller, bookID int64, count int) error {
	if count <= 0 {
		return invalidInput("count must be positive, got %d", count)
	}
	err := s.transact(ctx, "RemoveCopies", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		if _, err := s.repos.Books.GetByID(tx, bookID); err != nil {
			return notFoundAs(err, ErrBookNotFound)
		}
		return s.removeCopiesTx(tx, bookID, count)
	})
	if err != nil {
		log.Printf("[ERROR] RemoveCopies: book %d, count %d: %v", bookID, count, err)
		return err
	}
	log.Printf("[INFO] RemoveCopies: removed %d copies from book %d", count, bookID)
	return nil
}

func (s *libraryService) ListCopies(ctx context.Context, bookID int64) ([]models.BookCopy, error) {
	db := s.reader(ctx)
	if _, err := s.repos.Books.GetByID(db, bookID); err != nil {
		return nil, notFoundAs(err, ErrBookNotFound)
	}
	return s.repos.Copies.ListByBook(db, bookID)
}

// ListCopiesByStatus returns every live copy in the given state, across all books.
func (s *libraryService) ListCopiesByStatus(ctx context.Context, caller identity.Caller, status models.BookCopyStatus) ([]models.BookCopy, error) {
	if !caller.IsLibrarian() {
		return nil, ErrNotLibrarian
	}
	if !status.Valid() {
		return nil, invalidInput("unknown copy status %q", status)
	}
	return s.repos.Copies.ListByStatus(s.reader(ctx), status)
}

// SetCopyCondition records a copy as LOST, DAMAGED or back to AVAILABLE. Borrowed copies
// change state only through the loan ledger.
func (s *libraryService) SetCopyCondition(ctx context.Context, caller identity.Caller, copyID int64, status models.BookCopyStatus) (*models.BookCopy, error) {
	if !status.Valid() || status == models.BookCopyStatusBorrowed {
		return nil, invalidInput("copy status must be one of AVAILABLE, LOST, DAMAGED, got %q", status)
	}
	var result *models.BookCopy
	err := s.transact(ctx, "SetCopyCondition", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		copy, err := s.repos.Copies.GetByIDForUpdate(tx, copyID)
		if err != nil {
			return notFoundAs(err, ErrCopyNotFound)
		}
		if copy.Status == models.BookCopyStatusBorrowed {
			return ErrCopyOnLoan
		}
		if copy.Status != status {
			ok, err := s.repos.Copies.TransitionStatus(tx, copy.ID, copy.Status, status)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: copy %d changed concurrently", ErrRetryable, copy.ID)
			}
			copy.Status = status
		}
		result = copy
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] SetCopyCondition: copy %d -> %s: %v", copyID, status, err)
		return nil, err
	}
	log.Printf("[INFO] SetCopyCondition: copy %d is now %s", copyID, status)
	return result, nil
}

// addCopiesTx inserts n AVAILABLE copies and grows both counters within tx.
func (s *libraryService) addCopiesTx(tx *gorm.DB, bookID int64, n int) ([]int64, error) {
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		copy := &models.BookCopy{
			BookID: bookID,
			Status: models.BookCopyStatusAvailable,
		}
		if err := s.repos.Copies.Create(tx, copy); err != nil {
			return nil, fmt.Errorf("create copy %d of %d: %w", i+1, n, err)
		}
		ids = append(ids, copy.ID)
	}
	ok, err := s.repos.Books.AdjustCopies(tx, bookID, n, n)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errCounterDrift
	}
	return ids, nil
}

// removeCopiesTx locks n AVAILABLE copies, retires them and shrinks both counters within tx.
func (s *libraryService) removeCopiesTx(tx *gorm.DB, bookID int64, n int) error {
	copies, err := s.repos.Copies.LockAvailable(tx, bookID, n)
	if err != nil {
		return err
	}
	if len(copies) < n {
		return ErrInsufficientAvailableCopies
	}
	ids := make([]int64, 0, len(copies))
	for _, c := range copies {
		ids = append(ids, c.ID)
	}
	if err := s.repos.Copies.DeleteByIDs(tx, ids); err != nil {
		return err
	}
	ok, err := s.repos.Books.AdjustCopies(tx, bookID, -n, -n)
	if err != nil {
		return err
	}
	if !ok {
		return errCounterDrift
	}
	return nil
}

// markBorrowed flips an AVAILABLE copy to BORROWED and takes one from the book's counter.
func (s *libraryService) markBorrowed(tx *gorm.DB, copy *models.BookCopy) error {
	ok, err := s.repos.Copies.TransitionStatus(tx, copy.ID, models.BookCopyStatusAvailable, models.BookCopyStatusBorrowed)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCopyUnavailable
	}
	ok, err = s.repos.Books.AdjustCopies(tx, copy.BookID, 0, -1)
	if err != nil {
		return err
	}
	if !ok {
		return errCounterDrift
	}
	copy.Status = models.BookCopyStatusBorrowed
	return nil
}

// markAvailable flips a BORROWED copy back to AVAILABLE and returns one to the book's counter.
func (s *libraryService) markAvailable(tx *gorm.DB, copy *models.BookCopy) error {
	ok, err := s.repos.Copies.TransitionStatus(tx, copy.ID, models.BookCopyStatusBorrowed, models.BookCopyStatusAvailable)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("copy %d of an active loan is not BORROWED: %w", copy.ID, errCounterDrift)
	}
	ok, err = s.repos.Books.AdjustCopies(tx, copy.BookID, 0, 1)
	if err != nil {
		return err
	}
	if !ok {
		return errCounterDrift
	}
	copy.Status = models.BookCopyStatusAvailable
	return nil
}

// ─── Reconciliation ───────────────────────────────────────────────────────────

// ReconcileReport lists the books whose cached counters were found out of sync and repaired.
type ReconcileReport struct {
	Checked  int                       `json:"checked"`
	Repaired []repositories.CopyCounts `json:"repaired"`
}

// Reconcile audits every book's total_copies and available_copies against its copy rows and
// rewrites the counters of books that drifted. Drifted books are re-read under row lock before
// repair so a concurrent loan cannot be overwritten.
func (s *libraryService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	err := s.transact(ctx, "Reconcile", func(tx *gorm.DB) error {
		report.Checked = 0
		report.Repaired = nil

		rows, err := s.repos.Audit.CopyCounts(tx)
		if err != nil {
			return err
		}
		report.Checked = len(rows)
		for _, row := range rows {
			if !row.Drifted() {
				continue
			}
			if _, err := s.repos.Books.GetByIDForUpdate(tx, row.BookID); err != nil {
				return err
			}
			fresh, err := s.repos.Audit.CopyCounts(tx, row.BookID)
			if err != nil {
				return err
			}
			if len(fresh) != 1 || !fresh[0].Drifted() {
				continue
			}
			current := fresh[0]
			if err := s.repos.Books.SetCounters(tx, current.BookID, current.CopyCount, current.ExpectedAvailable()); err != nil {
				return err
			}
			log.Printf("[WARN] Reconcile: book %d counters total=%d available=%d repaired to total=%d available=%d",
				current.BookID, current.TotalCopies, current.AvailableCopies, current.CopyCount, current.ExpectedAvailable())
			report.Repaired = append(report.Repaired, current)
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] Reconcile: %v", err)
		return nil, err
	}
	log.Printf("[INFO] Reconcile: checked %d books, repaired %d", report.Checked, len(report.Repaired))
	return report, nil
}
