package services

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
)

// ─── Fine Calculation ─────────────────────────────────────────────────────────

// calculateFine computes the overdue fine for a loan returned on returnedOn.
//
// Rules:
//   - No fine       : returned on or before the due date.
//   - Days overdue  : whole calendar days from due date to return date.
//   - Fine rate     : FinePerDay (0.50) per day overdue.
func calculateFine(dueDate, returnedOn time.Time) models.Cents {
	days := daysBetween(dueDate, returnedOn)
	if days <= 0 {
		return 0
	}
	return models.Cents(days) * FinePerDay
}

// assess creates the fine for a just-returned loan when it came back late. It is only
// reachable from ReturnLoan, which guards against a second return of the same loan; the
// unique index on fines.loan_id backs that up.
func (s *libraryService) assess(tx *gorm.DB, loan *models.Loan) (*models.Fine, error) {
	if loan.ReturnDate == nil {
		return nil, nil
	}
	amount := calculateFine(loan.DueDate, *loan.ReturnDate)
	if amount == 0 {
		return nil, nil
	}
	fine := &models.Fine{
		LoanID:        loan.ID,
		Amount:        amount,
		PaymentStatus: models.FineStatusUnpaid,
	}
	if err := s.repos.Fines.Create(tx, fine); err != nil {
		return nil, err
	}
	return fine, nil
}

// PayFine records payment of an UNPAID fine dated today. Paying a PAID fine fails with
// ErrAlreadyPaid and leaves payment_date untouched.
func (s *libraryService) PayFine(ctx context.Context, caller identity.Caller, fineID int64) (*models.Fine, error) {
	var result *models.Fine
	err := s.transact(ctx, "PayFine", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		fine, err := s.repos.Fines.GetByIDForUpdate(tx, fineID)
		if err != nil {
			return notFoundAs(err, ErrFineNotFound)
		}
		if fine.PaymentStatus == models.FineStatusPaid {
			return ErrAlreadyPaid
		}
		today := s.Today()
		ok, err := s.repos.Fines.MarkPaid(tx, fine.ID, today)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyPaid
		}
		fine.PaymentStatus = models.FineStatusPaid
		fine.PaymentDate = &today
		result = fine
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] PayFine: fine %d by %s: %v", fineID, caller, err)
		return nil, err
	}
	log.Printf("[INFO] PayFine: fine %d paid (%s)", fineID, result.Amount)
	return result, nil
}

// ListFines returns every fine to librarians and a member's own fines to that member.
func (s *libraryService) ListFines(ctx context.Context, caller identity.Caller) ([]models.Fine, error) {
	db := s.reader(ctx)
	if self, ok := caller.MemberID(); ok {
		return s.repos.Fines.ListByMember(db, self)
	}
	if !caller.IsLibrarian() {
		return nil, ErrPermission
	}
	return s.repos.Fines.List(db)
}
