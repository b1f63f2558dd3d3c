package services

import (
	"errors"
	"fmt"
)

// ─── Error Categories ─────────────────────────────────────────────────────────
//
// Every error returned by LibraryService matches exactly one category with errors.Is.
// Unclassified errors are internal failures.

var (
	// ErrNotFound: a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict: a precondition on the current state was violated.
	ErrStateConflict = errors.New("state conflict")

	// ErrCapacity: copies cannot be removed below the number currently on loan.
	ErrCapacity = errors.New("capacity error")

	// ErrQuotaExceeded: the member has reached the simultaneous loan limit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrPermission: the caller lacks the required role or association.
	ErrPermission = errors.New("permission denied")

	// ErrInvalidInput: request arguments are malformed or inconsistent.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRetryable: the transaction lost a race with a concurrent one and may be retried.
	ErrRetryable = errors.New("transaction conflict, retry")
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	ErrBookNotFound        = fmt.Errorf("book %w", ErrNotFound)
	ErrCopyNotFound        = fmt.Errorf("book copy %w", ErrNotFound)
	ErrMemberNotFound      = fmt.Errorf("member %w", ErrNotFound)
	ErrLoanNotFound        = fmt.Errorf("loan %w", ErrNotFound)
	ErrFineNotFound        = fmt.Errorf("fine %w", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)
	ErrAuthorNotFound      = fmt.Errorf("author %w", ErrNotFound)
	ErrCategoryNotFound    = fmt.Errorf("category %w", ErrNotFound)
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)

	// ErrCopyUnavailable is returned when a loan is requested for a copy that is not AVAILABLE,
	// or for a book with no AVAILABLE copy left.
	ErrCopyUnavailable = fmt.Errorf("%w: book copy is not available for loan", ErrStateConflict)

	// ErrAlreadyReturned is returned when a return is attempted on a returned loan.
	ErrAlreadyReturned = fmt.Errorf("%w: loan already returned", ErrStateConflict)

	// ErrAlreadyPaid is returned when paying a fine that is already PAID.
	ErrAlreadyPaid = fmt.Errorf("%w: fine already paid", ErrStateConflict)

	// ErrReservationNotActive is returned when cancelling or fulfilling a non-ACTIVE reservation.
	ErrReservationNotActive = fmt.Errorf("%w: reservation is not active", ErrStateConflict)

	// ErrCopyOnLoan is returned when a borrowed copy (or a book with one) would be altered or removed.
	ErrCopyOnLoan = fmt.Errorf("%w: book copy is on loan", ErrStateConflict)

	// ErrCopyBookMismatch is returned when fulfilling a reservation with a copy of another book.
	ErrCopyBookMismatch = fmt.Errorf("%w: copy does not belong to the reserved book", ErrStateConflict)

	// ErrInsufficientAvailableCopies is returned when removing more copies than are AVAILABLE.
	ErrInsufficientAvailableCopies = fmt.Errorf("%w: cannot reduce total copies below number of borrowed copies", ErrCapacity)

	// ErrLoanLimitExceeded is returned when the member already holds MaxActiveLoans loans.
	ErrLoanLimitExceeded = fmt.Errorf("%w: member has reached maximum loan limit", ErrQuotaExceeded)

	// ErrNotLibrarian is returned when an operation requires a resolvable librarian identity.
	ErrNotLibrarian = fmt.Errorf("%w: caller is not associated with a librarian", ErrPermission)

	// ErrNotOwner is returned when a member acts on another member's records.
	ErrNotOwner = fmt.Errorf("%w: caller may only access their own records", ErrPermission)

	// ErrInvalidCredentials is returned by Authenticate for unknown users or wrong passwords.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrPermission)
)

// invalidInput wraps a message into ErrInvalidInput.
func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// errCounterDrift aborts a transaction whose guarded counter update matched no row. It
// means Book.available_copies disagrees with the copy rows and the reconciler must run.
var errCounterDrift = errors.New("book availability counter out of sync with copies")
