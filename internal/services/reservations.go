package services

import (
	"context"
	"log"

	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
)

// ─── Reservations ─────────────────────────────────────────────────────────────
//
// Reservations are standing requests for a book. They are not queued and never fulfilled
// automatically: a librarian fulfils one explicitly with FulfillReservation.

// CreateReservation records an ACTIVE reservation dated today. Members reserve for
// themselves; librarians may reserve on behalf of any member. The expected return date is
// the soonest due date among the book's current loans, or today when none is out.
func (s *libraryService) CreateReservation(ctx context.Context, caller identity.Caller, bookID, memberID int64) (*models.Reservation, error) {
	if self, ok := caller.MemberID(); ok {
		if memberID == 0 {
			memberID = self
		}
	}
	if err := requireAccessTo(caller, memberID); err != nil {
		return nil, err
	}

	var reservation *models.Reservation
	err := s.transact(ctx, "CreateReservation", func(tx *gorm.DB) error {
		if _, err := s.repos.Books.GetByID(tx, bookID); err != nil {
			return notFoundAs(err, ErrBookNotFound)
		}
		if _, err := s.repos.Members.GetByID(tx, memberID); err != nil {
			return notFoundAs(err, ErrMemberNotFound)
		}

		today := s.Today()
		expected := today
		due, err := s.repos.Loans.EarliestDueDateForBook(tx, bookID)
		if err != nil {
			return err
		}
		if due != nil {
			expected = dateOf(*due)
		}

		res := &models.Reservation{
			BookID:             bookID,
			MemberID:           memberID,
			Status:             models.ReservationStatusActive,
			ReservationDate:    today,
			ExpectedReturnDate: expected,
		}
		if err := s.repos.Reservations.Create(tx, res); err != nil {
			return err
		}
		reservation = res
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] CreateReservation: book %d / member %d by %s: %v", bookID, memberID, caller, err)
		return nil, err
	}
	log.Printf("[INFO] CreateReservation: reservation %d created for member %d / book %d", reservation.ID, memberID, bookID)
	return reservation, nil
}

// CancelReservation moves an ACTIVE reservation to CANCELLED.
func (s *libraryService) CancelReservation(ctx context.Context, caller identity.Caller, reservationID int64) (*models.Reservation, error) {
	var result *models.Reservation
	err := s.transact(ctx, "CancelReservation", func(tx *gorm.DB) error {
		res, err := s.repos.Reservations.GetByIDForUpdate(tx, reservationID)
		if err != nil {
			return notFoundAs(err, ErrReservationNotFound)
		}
		if err := requireAccessTo(caller, res.MemberID); err != nil {
			return err
		}
		if res.Status != models.ReservationStatusActive {
			return ErrReservationNotActive
		}
		ok, err := s.repos.Reservations.UpdateStatus(tx, res.ID, models.ReservationStatusActive, models.ReservationStatusCancelled, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrReservationNotActive
		}
		res.Status = models.ReservationStatusCancelled
		result = res
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] CancelReservation: reservation %d by %s: %v", reservationID, caller, err)
		return nil, err
	}
	log.Printf("[INFO] CancelReservation: reservation %d cancelled", reservationID)
	return result, nil
}

// FulfillReservation lends copyID to the reserving member and marks the reservation
// FULFILLED, in one transaction. The copy must belong to the reserved book and every loan
// precondition of IssueLoan applies.
func (s *libraryService) FulfillReservation(ctx context.Context, caller identity.Caller, reservationID, copyID int64) (*models.Reservation, *models.Loan, error) {
	var (
		reservation *models.Reservation
		loan        *models.Loan
	)
	err := s.transact(ctx, "FulfillReservation", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		res, err := s.repos.Reservations.GetByIDForUpdate(tx, reservationID)
		if err != nil {
			return notFoundAs(err, ErrReservationNotFound)
		}
		if res.Status != models.ReservationStatusActive {
			return ErrReservationNotActive
		}

		issued, err := s.issueLoanTx(tx, caller, IssueLoanRequest{MemberID: res.MemberID}, func(tx *gorm.DB) (*models.BookCopy, error) {
			copy, err := s.repos.Copies.GetByIDForUpdate(tx, copyID)
			if err != nil {
				return nil, notFoundAs(err, ErrCopyNotFound)
			}
			if copy.BookID != res.BookID {
				return nil, ErrCopyBookMismatch
			}
			return copy, nil
		})
		if err != nil {
			return err
		}

		ok, err := s.repos.Reservations.UpdateStatus(tx, res.ID, models.ReservationStatusActive, models.ReservationStatusFulfilled, &issued.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrReservationNotActive
		}
		res.Status = models.ReservationStatusFulfilled
		res.FulfilledLoanID = &issued.ID
		reservation = res
		loan = issued
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] FulfillReservation: reservation %d / copy %d by %s: %v", reservationID, copyID, caller, err)
		return nil, nil, err
	}
	log.Printf("[INFO] FulfillReservation: reservation %d fulfilled by loan %d", reservationID, loan.ID)
	return reservation, loan, nil
}

// ListReservations returns a member's own reservations, or for librarians every reservation
// (optionally narrowed to one book).
func (s *libraryService) ListReservations(ctx context.Context, caller identity.Caller, bookID *int64) ([]models.Reservation, error) {
	db := s.reader(ctx)
	if self, ok := caller.MemberID(); ok {
		all, err := s.repos.Reservations.ListByMember(db, self)
		if err != nil || bookID == nil {
			return all, err
		}
		filtered := make([]models.Reservation, 0, len(all))
		for _, r := range all {
			if r.BookID == *bookID {
				filtered = append(filtered, r)
			}
		}
		return filtered, nil
	}
	if !caller.IsLibrarian() {
		return nil, ErrPermission
	}
	if bookID != nil {
		return s.repos.Reservations.ListByBook(db, *bookID)
	}
	return s.repos.Reservations.List(db)
}
