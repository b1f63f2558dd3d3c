package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending/internal/identity"
	"lending/internal/models"
	"lending/internal/testutil"
)

func TestCreateBookWithLinks(t *testing.T) {
	f := newFixture(t)
	author, err := f.svc.CreateAuthor(f.ctx, f.librarian, "Frank Herbert")
	require.NoError(t, err)
	category, err := f.svc.CreateCategory(f.ctx, f.librarian, "Science Fiction")
	require.NoError(t, err)

	book, err := f.svc.CreateBook(f.ctx, f.librarian, CreateBookRequest{
		Title:       "Dune",
		Edition:     "1st",
		TotalCopies: 3,
		AuthorIDs:   []int64{author.ID},
		CategoryIDs: []int64{category.ID},
	})
	require.NoError(t, err)
	assert.EqualValues(t, FirstBookID, book.ID)
	assert.Equal(t, 3, book.TotalCopies)
	assert.Equal(t, 3, book.AvailableCopies)
	require.Len(t, book.Authors, 1)
	assert.Equal(t, "Frank Herbert", book.Authors[0].Name)
	require.Len(t, book.Categories, 1)
	assert.Len(t, f.copies(book.ID), 3)

	_, err = f.svc.CreateBook(f.ctx, f.librarian, CreateBookRequest{Title: "Ghost", AuthorIDs: []int64{999}})
	assert.ErrorIs(t, err, ErrAuthorNotFound)
	_, err = f.svc.CreateBook(f.ctx, f.librarian, CreateBookRequest{Title: "Ghost", CategoryIDs: []int64{999}})
	assert.ErrorIs(t, err, ErrCategoryNotFound)
	_, err = f.svc.CreateBook(f.ctx, f.librarian, CreateBookRequest{Title: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateBook(f.ctx, f.librarian, CreateBookRequest{Title: "Neg", TotalCopies: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	books, err := f.svc.ListBooks(f.ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestBookIDsAreNeverReused(t *testing.T) {
	f := newFixture(t)
	first := f.book("Dune", 0)
	second := f.book("Emma", 0)
	assert.EqualValues(t, 1, first.ID)
	assert.EqualValues(t, 2, second.ID)

	require.NoError(t, f.svc.DeleteBook(f.ctx, f.librarian, second.ID))
	third := f.book("Persuasion", 0)
	assert.EqualValues(t, 3, third.ID)
}

func TestLinkAuthorAndCategory(t *testing.T) {
	f := newFixture(t)
	book := f.book("Good Omens", 1)
	pratchett, err := f.svc.CreateAuthor(f.ctx, f.librarian, "Terry Pratchett")
	require.NoError(t, err)
	gaiman, err := f.svc.CreateAuthor(f.ctx, f.librarian, "Neil Gaiman")
	require.NoError(t, err)
	fantasy, err := f.svc.CreateCategory(f.ctx, f.librarian, "Fantasy")
	require.NoError(t, err)

	require.NoError(t, f.svc.LinkAuthor(f.ctx, f.librarian, book.ID, pratchett.ID))
	require.NoError(t, f.svc.LinkAuthor(f.ctx, f.librarian, book.ID, gaiman.ID))
	require.NoError(t, f.svc.LinkAuthor(f.ctx, f.librarian, book.ID, gaiman.ID))
	require.NoError(t, f.svc.LinkCategory(f.ctx, f.librarian, book.ID, fantasy.ID))

	reloaded := f.reload(book.ID)
	assert.Len(t, reloaded.Authors, 2)
	assert.Len(t, reloaded.Categories, 1)

	assert.ErrorIs(t, f.svc.LinkAuthor(f.ctx, f.librarian, book.ID, 999), ErrAuthorNotFound)
	assert.ErrorIs(t, f.svc.LinkCategory(f.ctx, f.librarian, 999, fantasy.ID), ErrBookNotFound)

	authors, err := f.svc.ListAuthors(f.ctx)
	require.NoError(t, err)
	assert.Len(t, authors, 2)
	categories, err := f.svc.ListCategories(f.ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestUpdateBook(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	book := f.book("Dune", 3)
	f.issue(f.copies(book.ID)[0].ID, member.ID)

	title := "Dune Messiah"
	grow := 5
	updated, err := f.svc.UpdateBook(f.ctx, f.librarian, book.ID, UpdateBookRequest{Title: &title, TotalCopies: &grow})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 4, updated.AvailableCopies)

	shrink := 1
	_, err = f.svc.UpdateBook(f.ctx, f.librarian, book.ID, UpdateBookRequest{TotalCopies: &shrink})
	require.NoError(t, err)
	reloaded := f.reload(book.ID)
	assert.Equal(t, 1, reloaded.TotalCopies)
	assert.Equal(t, 0, reloaded.AvailableCopies)

	zero := 0
	_, err = f.svc.UpdateBook(f.ctx, f.librarian, book.ID, UpdateBookRequest{TotalCopies: &zero})
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 1, f.reload(book.ID).TotalCopies)

	empty := " "
	_, err = f.svc.UpdateBook(f.ctx, f.librarian, book.ID, UpdateBookRequest{Title: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.UpdateBook(f.ctx, f.librarian, 999, UpdateBookRequest{Title: &title})
	assert.ErrorIs(t, err, ErrBookNotFound)
	f.requireCounterInvariant(book.ID)
}

func TestDeleteBook(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	author, err := f.svc.CreateAuthor(f.ctx, f.librarian, "Jane Austen")
	require.NoError(t, err)
	book, err := f.svc.CreateBook(f.ctx, f.librarian, CreateBookRequest{Title: "Emma", TotalCopies: 1, AuthorIDs: []int64{author.ID}})
	require.NoError(t, err)
	loan := f.issue(f.copies(book.ID)[0].ID, member.ID)

	assert.ErrorIs(t, f.svc.DeleteBook(f.ctx, f.librarian, book.ID), ErrCopyOnLoan)

	f.clock.AdvanceDays(LoanPeriodDays + 1)
	result, err := f.svc.ReturnLoan(f.ctx, f.librarian, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Fine)
	reservation, err := f.svc.CreateReservation(f.ctx, identity.Member(member.ID), book.ID, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteBook(f.ctx, identity.Member(member.ID), book.ID), ErrPermission)
	require.NoError(t, f.svc.DeleteBook(f.ctx, f.librarian, book.ID))

	_, err = f.svc.GetBook(f.ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Empty(t, f.copies(book.ID))
	_, err = f.svc.IssueLoan(f.ctx, f.librarian, loan.CopyID, IssueLoanRequest{MemberID: member.ID})
	assert.ErrorIs(t, err, ErrCopyNotFound)

	kept, err := f.svc.GetLoan(f.ctx, f.librarian, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusReturned, kept.Status)
	fines, err := f.svc.ListFines(f.ctx, f.librarian)
	require.NoError(t, err)
	require.Len(t, fines, 1)
	assert.Equal(t, models.FineStatusUnpaid, fines[0].PaymentStatus)

	reservations, err := f.svc.ListReservations(f.ctx, f.librarian, nil)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, reservation.ID, reservations[0].ID)
	assert.Equal(t, models.ReservationStatusCancelled, reservations[0].Status)

	authors, err := f.svc.ListAuthors(f.ctx)
	require.NoError(t, err)
	assert.Len(t, authors, 1)
	assert.ErrorIs(t, f.svc.DeleteBook(f.ctx, f.librarian, book.ID), ErrBookNotFound)
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	first := f.member("Ada")
	second := f.member("Grace")
	assert.EqualValues(t, FirstMemberID, first.ID)
	assert.EqualValues(t, FirstMemberID+1, second.ID)
	assert.True(t, first.StartDate.Equal(testutil.Date(2024, 3, 1)))

	start := testutil.Date(2023, 9, 1)
	third, err := f.svc.CreateMember(f.ctx, f.librarian, CreateMemberRequest{Name: "Linus", Email: "linus@example.org", StartDate: &start})
	require.NoError(t, err)
	assert.True(t, third.StartDate.Equal(start))

	_, err = f.svc.CreateMember(f.ctx, f.librarian, CreateMemberRequest{Name: "Dup", Email: "linus@example.org"})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = f.svc.CreateMember(f.ctx, f.librarian, CreateMemberRequest{Name: "", Email: "x@example.org"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateMember(f.ctx, identity.Member(first.ID), CreateMemberRequest{Name: "Eve", Email: "eve@example.org"})
	assert.ErrorIs(t, err, ErrPermission)

	self, err := f.svc.GetMember(f.ctx, identity.Member(first.ID), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", self.Name)
	_, err = f.svc.GetMember(f.ctx, identity.Member(first.ID), second.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.svc.GetMember(f.ctx, f.librarian, 999)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	all, err := f.svc.ListMembers(f.ctx, f.librarian)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	_, err = f.svc.ListMembers(f.ctx, identity.Member(first.ID))
	assert.ErrorIs(t, err, ErrPermission)
}

func TestCreateLibrarian(t *testing.T) {
	f := newFixture(t)
	lib, err := f.svc.CreateLibrarian(f.ctx, f.librarian, CreateLibrarianRequest{Name: "Second", Email: "second@example.org"})
	require.NoError(t, err)
	assert.NotZero(t, lib.ID)

	member := f.member("Ada")
	_, err = f.svc.CreateLibrarian(f.ctx, identity.Member(member.ID), CreateLibrarianRequest{Name: "Sneaky", Email: "s@example.org"})
	assert.ErrorIs(t, err, ErrPermission)

	// The new librarian can act immediately.
	_, err = f.svc.CreateBook(f.ctx, identity.Librarian(lib.ID), CreateBookRequest{Title: "Dune"})
	assert.NoError(t, err)
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	today := f.svc.Today()

	event, err := f.svc.CreateEvent(f.ctx, f.librarian, CreateEventRequest{
		Name:      "Reading club",
		StartDate: today,
		EndDate:   today.AddDate(0, 0, 2),
		EventTime: "18:30",
		MemberID:  &member.ID,
	})
	require.NoError(t, err)
	lid, _ := f.librarian.LibrarianID()
	assert.Equal(t, lid, event.LibrarianID)

	tests := []struct {
		name string
		req  CreateEventRequest
	}{
		{"past start", CreateEventRequest{Name: "Late", StartDate: today.AddDate(0, 0, -1), EndDate: today, EventTime: "10:00"}},
		{"end before start", CreateEventRequest{Name: "Odd", StartDate: today.AddDate(0, 0, 2), EndDate: today, EventTime: "10:00"}},
		{"bad time", CreateEventRequest{Name: "Noon", StartDate: today, EndDate: today, EventTime: "noon"}},
		{"missing name", CreateEventRequest{StartDate: today, EndDate: today, EventTime: "10:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateEvent(f.ctx, f.librarian, tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err = f.svc.CreateEvent(f.ctx, identity.Member(member.ID), CreateEventRequest{Name: "Mine", StartDate: today, EndDate: today, EventTime: "10:00"})
	assert.ErrorIs(t, err, ErrPermission)

	events, err := f.svc.ListEvents(f.ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Reading club", events[0].Name)
}

func TestUpdateMember(t *testing.T) {
	f := newFixture(t)
	ada := f.member("Ada")
	grace := f.member("Grace")

	name, email, phone := "Ada Lovelace", "ada@example.org", "555-0100"
	start := testutil.Date(2023, 1, 15)
	updated, err := f.svc.UpdateMember(f.ctx, f.librarian, ada.ID, UpdateMemberRequest{
		Name: &name, Email: &email, Phone: &phone, StartDate: &start,
	})
	require.NoError(t, err)
	assert.Equal(t, ada.ID, updated.ID)
	assert.Equal(t, "Ada Lovelace", updated.Name)
	assert.True(t, updated.StartDate.Equal(start))

	reloaded, err := f.svc.GetMember(f.ctx, f.librarian, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.org", reloaded.Email)
	assert.Equal(t, "555-0100", reloaded.Phone)
	assert.Equal(t, ada.Address, reloaded.Address)

	_, err = f.svc.UpdateMember(f.ctx, f.librarian, grace.ID, UpdateMemberRequest{Email: &email})
	assert.ErrorIs(t, err, ErrDuplicate)
	blank := "  "
	_, err = f.svc.UpdateMember(f.ctx, f.librarian, grace.ID, UpdateMemberRequest{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.UpdateMember(f.ctx, f.librarian, 999, UpdateMemberRequest{Name: &name})
	assert.ErrorIs(t, err, ErrMemberNotFound)
	_, err = f.svc.UpdateMember(f.ctx, identity.Member(ada.ID), ada.ID, UpdateMemberRequest{Name: &name})
	assert.ErrorIs(t, err, ErrPermission)
}

func TestUpdateEvent(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	today := f.svc.Today()
	event, err := f.svc.CreateEvent(f.ctx, f.librarian, CreateEventRequest{
		Name:      "Reading club",
		StartDate: today,
		EndDate:   today.AddDate(0, 0, 2),
		EventTime: "18:30",
		MemberID:  &member.ID,
	})
	require.NoError(t, err)

	f.clock.AdvanceDays(1)
	name, at := "Poetry night", "19:00"
	end := today.AddDate(0, 0, 5)
	updated, err := f.svc.UpdateEvent(f.ctx, f.librarian, event.ID, UpdateEventRequest{Name: &name, EndDate: &end, EventTime: &at})
	require.NoError(t, err)
	assert.Equal(t, "Poetry night", updated.Name)
	assert.True(t, updated.StartDate.Equal(today), "an untouched start date may already be in the past")
	assert.True(t, updated.EndDate.Equal(end))
	assert.Equal(t, "19:00", updated.EventTime)

	updated, err = f.svc.UpdateEvent(f.ctx, f.librarian, event.ID, UpdateEventRequest{ClearMember: true})
	require.NoError(t, err)
	assert.Nil(t, updated.MemberID)

	past := today
	tooEarly := today.AddDate(0, 0, 1)
	later := today.AddDate(0, 0, 10)
	missing := int64(999)
	tests := []struct {
		name string
		req  UpdateEventRequest
		want error
	}{
		{"past start", UpdateEventRequest{StartDate: &past}, ErrInvalidInput},
		{"start after stored end", UpdateEventRequest{StartDate: &later}, ErrInvalidInput},
		{"end before stored start", UpdateEventRequest{EndDate: &tooEarly, StartDate: &later}, ErrInvalidInput},
		{"bad time", UpdateEventRequest{EventTime: &name}, ErrInvalidInput},
		{"unknown member", UpdateEventRequest{MemberID: &missing}, ErrMemberNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateEvent(f.ctx, f.librarian, event.ID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.svc.UpdateEvent(f.ctx, f.librarian, 999, UpdateEventRequest{Name: &name})
	assert.ErrorIs(t, err, ErrEventNotFound)
	_, err = f.svc.UpdateEvent(f.ctx, identity.Member(member.ID), event.ID, UpdateEventRequest{Name: &name})
	assert.ErrorIs(t, err, ErrPermission)

	events, err := f.svc.ListEvents(f.ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Poetry night", events[0].Name)
	assert.True(t, events[0].EndDate.Equal(end))
}
