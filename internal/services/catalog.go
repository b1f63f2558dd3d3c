package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
)

// ErrDuplicate is returned when a unique field (email, username) is already taken.
var ErrDuplicate = fmt.Errorf("%w: already exists", ErrStateConflict)

// duplicateAs maps a unique-constraint violation to ErrDuplicate.
func duplicateAs(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s %w", what, ErrDuplicate)
	}
	return err
}

// ─── Book Management ──────────────────────────────────────────────────────────

// CreateBook creates a book record together with the requested number of physical copies
// and its author/category links, all within a single transaction.
func (s *libraryService) CreateBook(ctx context.Context, caller identity.Caller, req CreateBookRequest) (*models.Book, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalidInput("title is required")
	}
	if req.TotalCopies < 0 {
		return nil, invalidInput("total_copies must not be negative")
	}

	var book *models.Book
	err := s.transact(ctx, "CreateBook", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		authors, err := s.repos.Catalog.GetAuthorsByIDs(tx, req.AuthorIDs)
		if err != nil {
			return err
		}
		if len(authors) != len(uniqueIDs(req.AuthorIDs)) {
			return ErrAuthorNotFound
		}
		categories, err := s.repos.Catalog.GetCategoriesByIDs(tx, req.CategoryIDs)
		if err != nil {
			return err
		}
		if len(categories) != len(uniqueIDs(req.CategoryIDs)) {
			return ErrCategoryNotFound
		}

		id, err := s.repos.Sequences.Next(tx, sequenceBooks, FirstBookID)
		if err != nil {
			return err
		}
		created := &models.Book{ID: id, Title: title, Edition: strings.TrimSpace(req.Edition)}
		if err := s.repos.Books.Create(tx, created); err != nil {
			log.Printf("[ERROR] CreateBook: failed to create book record: %v", err)
			return err
		}
		if err := s.repos.Catalog.LinkAuthors(tx, created, authors); err != nil {
			return err
		}
		if err := s.repos.Catalog.LinkCategories(tx, created, categories); err != nil {
			return err
		}
		if req.TotalCopies > 0 {
			if _, err := s.addCopiesTx(tx, created.ID, req.TotalCopies); err != nil {
				log.Printf("[ERROR] CreateBook: failed to create copies: %v", err)
				return err
			}
		}
		reloaded, err := s.repos.Books.GetByID(tx, created.ID)
		if err != nil {
			return err
		}
		book = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] CreateBook: created book %q (id=%d) with %d copies", book.Title, book.ID, book.TotalCopies)
	return book, nil
}

func (s *libraryService) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.repos.Books.GetByID(s.reader(ctx), id)
	if err != nil {
		return nil, notFoundAs(err, ErrBookNotFound)
	}
	return book, nil
}

// ListBooks returns all books in the catalogue.
func (s *libraryService) ListBooks(ctx context.Context) ([]models.Book, error) {
	return s.repos.Books.List(s.reader(ctx))
}

// UpdateBook edits title/edition and resizes the copy set when TotalCopies changes.
// Shrinking removes AVAILABLE copies only and fails with ErrInsufficientAvailableCopies
// when not enough are on the shelf.
//
// The book row is locked first so the size delta is computed against the current total;
// a deadlock against a concurrent loan on the same book is resolved by the retry loop.
func (s *libraryService) UpdateBook(ctx context.Context, caller identity.Caller, id int64, req UpdateBookRequest) (*models.Book, error) {
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, invalidInput("title must not be empty")
	}
	if req.TotalCopies != nil && *req.TotalCopies < 0 {
		return nil, invalidInput("total_copies must not be negative")
	}

	var book *models.Book
	err := s.transact(ctx, "UpdateBook", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		current, err := s.repos.Books.GetByIDForUpdate(tx, id)
		if err != nil {
			return notFoundAs(err, ErrBookNotFound)
		}

		if req.Title != nil || req.Edition != nil {
			title, edition := current.Title, current.Edition
			if req.Title != nil {
				title = strings.TrimSpace(*req.Title)
			}
			if req.Edition != nil {
				edition = strings.TrimSpace(*req.Edition)
			}
			if err := s.repos.Books.UpdateDetails(tx, id, title, edition); err != nil {
				return err
			}
		}

		if req.TotalCopies != nil {
			switch delta := *req.TotalCopies - current.TotalCopies; {
			case delta > 0:
				if _, err := s.addCopiesTx(tx, id, delta); err != nil {
					return err
				}
			case delta < 0:
				if err := s.removeCopiesTx(tx, id, -delta); err != nil {
					return err
				}
			}
		}

		reloaded, err := s.repos.Books.GetByID(tx, id)
		if err != nil {
			return err
		}
		book = reloaded
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] UpdateBook: book %d: %v", id, err)
		return nil, err
	}
	log.Printf("[INFO] UpdateBook: book %d now has %d copies (%d available)", id, book.TotalCopies, book.AvailableCopies)
	return book, nil
}

// DeleteBook retires a book: the book and all of its copies are soft-deleted, its links
// dropped and its ACTIVE reservations cancelled. Loans and fines stay on record. A book
// with a copy on loan cannot be deleted.
func (s *libraryService) DeleteBook(ctx context.Context, caller identity.Caller, id int64) error {
	var copies, cancelled int64
	err := s.transact(ctx, "DeleteBook", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		book, err := s.repos.Books.GetByIDForUpdate(tx, id)
		if err != nil {
			return notFoundAs(err, ErrBookNotFound)
		}
		borrowed, err := s.repos.Copies.CountByBookAndStatus(tx, id, models.BookCopyStatusBorrowed)
		if err != nil {
			return err
		}
		if borrowed > 0 {
			return ErrCopyOnLoan
		}
		if copies, err = s.repos.Copies.CountByBook(tx, id); err != nil {
			return err
		}
		if err := s.repos.Copies.DeleteByBook(tx, id); err != nil {
			return err
		}
		if cancelled, err = s.repos.Reservations.CancelActiveByBook(tx, id); err != nil {
			return err
		}
		if err := s.repos.Catalog.ClearLinks(tx, book); err != nil {
			return err
		}
		return s.repos.Books.Delete(tx, book)
	})
	if err != nil {
		log.Printf("[ERROR] DeleteBook: book %d: %v", id, err)
		return err
	}
	log.Printf("[INFO] DeleteBook: book %d deleted with %d copies, %d reservations cancelled", id, copies, cancelled)
	return nil
}

// ─── Authors & Categories ─────────────────────────────────────────────────────

func (s *libraryService) CreateAuthor(ctx context.Context, caller identity.Caller, name string) (*models.Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("name is required")
	}
	author := &models.Author{Name: name}
	err := s.transact(ctx, "CreateAuthor", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		return s.repos.Catalog.CreateAuthor(tx, author)
	})
	if err != nil {
		return nil, err
	}
	return author, nil
}

func (s *libraryService) ListAuthors(ctx context.Context) ([]models.Author, error) {
	return s.repos.Catalog.ListAuthors(s.reader(ctx))
}

func (s *libraryService) CreateCategory(ctx context.Context, caller identity.Caller, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("name is required")
	}
	category := &models.Category{Name: name}
	err := s.transact(ctx, "CreateCategory", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		return s.repos.Catalog.CreateCategory(tx, category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *libraryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.repos.Catalog.ListCategories(s.reader(ctx))
}

func (s *libraryService) LinkAuthor(ctx context.Context, caller identity.Caller, bookID, authorID int64) error {
	return s.transact(ctx, "LinkAuthor", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		book, err := s.repos.Books.GetByID(tx, bookID)
		if err != nil {
			return notFoundAs(err, ErrBookNotFound)
		}
		authors, err := s.repos.Catalog.GetAuthorsByIDs(tx, []int64{authorID})
		if err != nil {
			return err
		}
		if len(authors) == 0 {
			return ErrAuthorNotFound
		}
		for _, a := range book.Authors {
			if a.ID == authorID {
				return nil
			}
		}
		return s.repos.Catalog.LinkAuthors(tx, book, authors)
	})
}

func (s *libraryService) LinkCategory(ctx context.Context, caller identity.Caller, bookID, categoryID int64) error {
	return s.transact(ctx, "LinkCategory", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		book, err := s.repos.Books.GetByID(tx, bookID)
		if err != nil {
			return notFoundAs(err, ErrBookNotFound)
		}
		categories, err := s.repos.Catalog.GetCategoriesByIDs(tx, []int64{categoryID})
		if err != nil {
			return err
		}
		if len(categories) == 0 {
			return ErrCategoryNotFound
		}
		for _, c := range book.Categories {
			if c.ID == categoryID {
				return nil
			}
		}
		return s.repos.Catalog.LinkCategories(tx, book, categories)
	})
}

// ─── Members & Librarians ─────────────────────────────────────────────────────

// CreateMember registers a member under the next member id (starting at 101, never reused).
// The start date defaults to today.
func (s *libraryService) CreateMember(ctx context.Context, caller identity.Caller, req CreateMemberRequest) (*models.Member, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, invalidInput("name and email_address are required")
	}

	var member *models.Member
	err := s.transact(ctx, "CreateMember", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		id, err := s.repos.Sequences.Next(tx, sequenceMembers, FirstMemberID)
		if err != nil {
			return err
		}
		start := s.Today()
		if req.StartDate != nil {
			start = dateOf(*req.StartDate)
		}
		m := &models.Member{
			ID:        id,
			Name:      name,
			Address:   strings.TrimSpace(req.Address),
			Email:     email,
			Phone:     strings.TrimSpace(req.Phone),
			StartDate: start,
		}
		if err := s.repos.Members.Create(tx, m); err != nil {
			return duplicateAs(err, "member email")
		}
		member = m
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] CreateMember: %v", err)
		return nil, err
	}
	log.Printf("[INFO] CreateMember: member %d registered", member.ID)
	return member, nil
}

func (s *libraryService) GetMember(ctx context.Context, caller identity.Caller, id int64) (*models.Member, error) {
	if err := requireAccessTo(caller, id); err != nil {
		return nil, err
	}
	member, err := s.repos.Members.GetByID(s.reader(ctx), id)
	if err != nil {
		return nil, notFoundAs(err, ErrMemberNotFound)
	}
	return member, nil
}

func (s *libraryService) ListMembers(ctx context.Context, caller identity.Caller) ([]models.Member, error) {
	if !caller.IsLibrarian() {
		return nil, ErrNotLibrarian
	}
	return s.repos.Members.List(s.reader(ctx))
}

// UpdateMember edits a member's details; the id is immutable. Members have no login email
// of their own, so nothing else needs to follow an email change.
func (s *libraryService) UpdateMember(ctx context.Context, caller identity.Caller, id int64, req UpdateMemberRequest) (*models.Member, error) {
	var member *models.Member
	err := s.transact(ctx, "UpdateMember", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		m, err := s.repos.Members.GetByIDForUpdate(tx, id)
		if err != nil {
			return notFoundAs(err, ErrMemberNotFound)
		}
		if req.Name != nil {
			if m.Name = strings.TrimSpace(*req.Name); m.Name == "" {
				return invalidInput("name cannot be empty")
			}
		}
		if req.Email != nil {
			if m.Email = strings.TrimSpace(*req.Email); m.Email == "" {
				return invalidInput("email_address cannot be empty")
			}
		}
		if req.Address != nil {
			m.Address = strings.TrimSpace(*req.Address)
		}
		if req.Phone != nil {
			m.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.StartDate != nil {
			m.StartDate = dateOf(*req.StartDate)
		}
		if err := s.repos.Members.Update(tx, m); err != nil {
			return duplicateAs(err, "member email")
		}
		member = m
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] UpdateMember: member %d: %v", id, err)
		return nil, err
	}
	log.Printf("[INFO] UpdateMember: member %d updated", id)
	return member, nil
}

func (s *libraryService) CreateLibrarian(ctx context.Context, caller identity.Caller, req CreateLibrarianRequest) (*models.Librarian, error) {
	var librarian *models.Librarian
	err := s.transact(ctx, "CreateLibrarian", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		created, err := s.createLibrarianTx(tx, req)
		if err != nil {
			return err
		}
		librarian = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] CreateLibrarian: librarian %d created", librarian.ID)
	return librarian, nil
}

func (s *libraryService) createLibrarianTx(tx *gorm.DB, req CreateLibrarianRequest) (*models.Librarian, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, invalidInput("name and email_address are required")
	}
	librarian := &models.Librarian{Name: name, Email: email, Phone: strings.TrimSpace(req.Phone)}
	if err := s.repos.Librarians.Create(tx, librarian); err != nil {
		return nil, duplicateAs(err, "librarian email")
	}
	return librarian, nil
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent schedules a library event run by the calling librarian. The start date may
// not be in the past and the end date may not precede it.
func (s *libraryService) CreateEvent(ctx context.Context, caller identity.Caller, req CreateEventRequest) (*models.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidInput("name is required")
	}
	start, end := dateOf(req.StartDate), dateOf(req.EndDate)
	if start.Before(s.Today()) {
		return nil, invalidInput("start date cannot be in the past")
	}
	if end.Before(start) {
		return nil, invalidInput("end date cannot be before start date")
	}
	if _, err := time.Parse("15:04", req.EventTime); err != nil {
		return nil, invalidInput("event_time must be HH:MM")
	}

	var event *models.Event
	err := s.transact(ctx, "CreateEvent", func(tx *gorm.DB) error {
		librarian, err := s.requireLibrarian(tx, caller)
		if err != nil {
			return err
		}
		if req.MemberID != nil {
			if _, err := s.repos.Members.GetByID(tx, *req.MemberID); err != nil {
				return notFoundAs(err, ErrMemberNotFound)
			}
		}
		e := &models.Event{
			Name:        name,
			StartDate:   start,
			EndDate:     end,
			EventTime:   req.EventTime,
			MemberID:    req.MemberID,
			LibrarianID: librarian.ID,
		}
		if err := s.repos.Events.Create(tx, e); err != nil {
			return err
		}
		event = e
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] CreateEvent: %v", err)
		return nil, err
	}
	log.Printf("[INFO] CreateEvent: event %d %q on %s", event.ID, event.Name, event.StartDate.Format("2006-01-02"))
	return event, nil
}

// UpdateEvent edits an event. A new start date may not be in the past, and the resulting
// end date may not precede the resulting start date.
func (s *libraryService) UpdateEvent(ctx context.Context, caller identity.Caller, id int64, req UpdateEventRequest) (*models.Event, error) {
	if req.StartDate != nil && dateOf(*req.StartDate).Before(s.Today()) {
		return nil, invalidInput("start date cannot be in the past")
	}
	if req.EventTime != nil {
		if _, err := time.Parse("15:04", *req.EventTime); err != nil {
			return nil, invalidInput("event_time must be HH:MM")
		}
	}
	if req.ClearMember && req.MemberID != nil {
		return nil, invalidInput("member_id cannot be both set and cleared")
	}

	var event *models.Event
	err := s.transact(ctx, "UpdateEvent", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		e, err := s.repos.Events.GetByIDForUpdate(tx, id)
		if err != nil {
			return notFoundAs(err, ErrEventNotFound)
		}
		if req.Name != nil {
			if e.Name = strings.TrimSpace(*req.Name); e.Name == "" {
				return invalidInput("name cannot be empty")
			}
		}
		if req.StartDate != nil {
			e.StartDate = dateOf(*req.StartDate)
		}
		if req.EndDate != nil {
			e.EndDate = dateOf(*req.EndDate)
		}
		if e.EndDate.Before(e.StartDate) {
			return invalidInput("end date cannot be before start date")
		}
		if req.EventTime != nil {
			e.EventTime = *req.EventTime
		}
		switch {
		case req.ClearMember:
			e.MemberID = nil
		case req.MemberID != nil:
			if _, err := s.repos.Members.GetByID(tx, *req.MemberID); err != nil {
				return notFoundAs(err, ErrMemberNotFound)
			}
			e.MemberID = req.MemberID
		}
		if err := s.repos.Events.Update(tx, e); err != nil {
			return err
		}
		event = e
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] UpdateEvent: event %d: %v", id, err)
		return nil, err
	}
	log.Printf("[INFO] UpdateEvent: event %d %q on %s", event.ID, event.Name, event.StartDate.Format("2006-01-02"))
	return event, nil
}

func (s *libraryService) ListEvents(ctx context.Context) ([]models.Event, error) {
	return s.repos.Events.List(s.reader(ctx))
}

func uniqueIDs(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
