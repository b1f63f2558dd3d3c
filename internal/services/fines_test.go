package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending/internal/identity"
	"lending/internal/models"
	"lending/internal/testutil"
)

func TestCalculateFine(t *testing.T) {
	due := testutil.Date(2024, 3, 15)
	tests := []struct {
		name     string
		returned int // days after due
		want     models.Cents
	}{
		{"early", -3, 0},
		{"on due date", 0, 0},
		{"one day late", 1, 50},
		{"three days late", 3, 150},
		{"a month late", 30, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateFine(due, due.AddDate(0, 0, tt.returned))
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "1.50", calculateFine(due, due.AddDate(0, 0, 3)).String())
}

func TestReturnLateAssessesFine(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	book := f.book("Dune", 1)
	loan := f.issue(f.copies(book.ID)[0].ID, member.ID)

	f.clock.AdvanceDays(LoanPeriodDays + 3)
	result, err := f.svc.ReturnLoan(f.ctx, f.librarian, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Fine)
	assert.Equal(t, models.Cents(150), result.Fine.Amount)
	assert.Equal(t, "1.50", result.Fine.Amount.String())
	assert.Equal(t, models.FineStatusUnpaid, result.Fine.PaymentStatus)
	assert.Nil(t, result.Fine.PaymentDate)
	assert.Equal(t, loan.ID, result.Fine.LoanID)

	fines, err := f.svc.ListFines(f.ctx, identity.Member(member.ID))
	require.NoError(t, err)
	assert.Len(t, fines, 1)
}

func TestReturnOnTimeHasNoFine(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	book := f.book("Dune", 1)
	loan := f.issue(f.copies(book.ID)[0].ID, member.ID)

	f.clock.AdvanceDays(LoanPeriodDays)
	result, err := f.svc.ReturnLoan(f.ctx, f.librarian, loan.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Fine)

	fines, err := f.svc.ListFines(f.ctx, f.librarian)
	require.NoError(t, err)
	assert.Empty(t, fines)
}

func TestPayFineOnce(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	book := f.book("Dune", 1)
	loan := f.issue(f.copies(book.ID)[0].ID, member.ID)
	f.clock.AdvanceDays(LoanPeriodDays + 1)
	result, err := f.svc.ReturnLoan(f.ctx, f.librarian, loan.ID)
	require.NoError(t, err)
	fineID := result.Fine.ID

	_, err = f.svc.PayFine(f.ctx, identity.Member(member.ID), fineID)
	assert.ErrorIs(t, err, ErrPermission)

	paidOn := f.svc.Today()
	paid, err := f.svc.PayFine(f.ctx, f.librarian, fineID)
	require.NoError(t, err)
	assert.Equal(t, models.FineStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaymentDate)
	assert.True(t, paid.PaymentDate.Equal(paidOn))

	f.clock.AdvanceDays(5)
	for i := 0; i < 2; i++ {
		_, err = f.svc.PayFine(f.ctx, f.librarian, fineID)
		assert.ErrorIs(t, err, ErrAlreadyPaid)
	}

	stored, err := f.repos.Fines.GetByLoan(f.db, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FineStatusPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentDate)
	assert.True(t, stored.PaymentDate.Equal(paidOn), "payment_date moved to %s", stored.PaymentDate)

	_, err = f.svc.PayFine(f.ctx, f.librarian, 9999)
	assert.ErrorIs(t, err, ErrFineNotFound)
}

func TestListFinesScoping(t *testing.T) {
	f := newFixture(t)
	ada := f.member("Ada")
	grace := f.member("Grace")
	book := f.book("Dune", 2)
	copies := f.copies(book.ID)
	adaLoan := f.issue(copies[0].ID, ada.ID)
	graceLoan := f.issue(copies[1].ID, grace.ID)

	f.clock.AdvanceDays(LoanPeriodDays + 2)
	for _, id := range []int64{adaLoan.ID, graceLoan.ID} {
		_, err := f.svc.ReturnLoan(f.ctx, f.librarian, id)
		require.NoError(t, err)
	}

	all, err := f.svc.ListFines(f.ctx, f.librarian)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.svc.ListFines(f.ctx, identity.Member(grace.ID))
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, graceLoan.ID, own[0].LoanID)

	_, err = f.svc.ListFines(f.ctx, identity.Anonymous)
	assert.ErrorIs(t, err, ErrPermission)
}
