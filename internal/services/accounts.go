package services

import (
	"context"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lending/internal/identity"
	"lending/internal/models"
)

// passwordCost is the bcrypt work factor for stored credentials.
var passwordCost = bcrypt.DefaultCost

// minPasswordLength is the shortest password an account may be created with.
const minPasswordLength = 8

// ─── Accounts ─────────────────────────────────────────────────────────────────

// CreateAccount gives an existing member or librarian login credentials. Only librarians may
// create accounts.
func (s *libraryService) CreateAccount(ctx context.Context, caller identity.Caller, req CreateAccountRequest) (*models.Account, error) {
	var account *models.Account
	err := s.transact(ctx, "CreateAccount", func(tx *gorm.DB) error {
		if _, err := s.requireLibrarian(tx, caller); err != nil {
			return err
		}
		created, err := s.createAccountTx(tx, req)
		if err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] CreateAccount: %q by %s: %v", req.Username, caller, err)
		return nil, err
	}
	log.Printf("[INFO] CreateAccount: account %q created with role %s", account.Username, account.Role)
	return account, nil
}

// BootstrapLibrarian creates a librarian together with its account without a calling
// identity. It is meant for the operator CLI, which is how the first librarian comes to exist.
func (s *libraryService) BootstrapLibrarian(ctx context.Context, req CreateLibrarianRequest, username, password string) (*models.Librarian, *models.Account, error) {
	var (
		librarian *models.Librarian
		account   *models.Account
	)
	err := s.transact(ctx, "BootstrapLibrarian", func(tx *gorm.DB) error {
		l, err := s.createLibrarianTx(tx, req)
		if err != nil {
			return err
		}
		a, err := s.createAccountTx(tx, CreateAccountRequest{
			Username:    username,
			Password:    password,
			Role:        models.UserRoleLibrarian,
			LibrarianID: &l.ID,
		})
		if err != nil {
			return err
		}
		librarian, account = l, a
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] BootstrapLibrarian: %q: %v", username, err)
		return nil, nil, err
	}
	log.Printf("[INFO] BootstrapLibrarian: librarian %d created with account %q", librarian.ID, account.Username)
	return librarian, account, nil
}

func (s *libraryService) createAccountTx(tx *gorm.DB, req CreateAccountRequest) (*models.Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, invalidInput("username is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalidInput("password must be at least %d characters", minPasswordLength)
	}

	switch req.Role {
	case models.UserRoleMember:
		if req.MemberID == nil || req.LibrarianID != nil {
			return nil, invalidInput("a MEMBER account needs member_id only")
		}
		if _, err := s.repos.Members.GetByID(tx, *req.MemberID); err != nil {
			return nil, notFoundAs(err, ErrMemberNotFound)
		}
	case models.UserRoleLibrarian:
		if req.LibrarianID == nil || req.MemberID != nil {
			return nil, invalidInput("a LIBRARIAN account needs librarian_id only")
		}
		if _, err := s.repos.Librarians.GetByID(tx, *req.LibrarianID); err != nil {
			return nil, notFoundAs(err, ErrNotFound)
		}
	default:
		return nil, invalidInput("role must be MEMBER or LIBRARIAN, got %q", req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), passwordCost)
	if err != nil {
		return nil, err
	}
	account := &models.Account{
		Username:     username,
		PasswordHash: string(hash),
		Role:         req.Role,
		MemberID:     req.MemberID,
		LibrarianID:  req.LibrarianID,
	}
	if err := s.repos.Accounts.Create(tx, account); err != nil {
		return nil, duplicateAs(err, "username")
	}
	return account, nil
}

// Authenticate checks a username/password pair and resolves the account to its caller
// identity. Unknown users and wrong passwords both fail with ErrInvalidCredentials.
func (s *libraryService) Authenticate(ctx context.Context, username, password string) (identity.Caller, error) {
	account, err := s.repos.Accounts.GetByUsername(s.reader(ctx), strings.TrimSpace(username))
	if err != nil {
		if isNotFound(err) {
			return identity.Anonymous, ErrInvalidCredentials
		}
		return identity.Anonymous, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		log.Printf("[WARN] Authenticate: bad password for %q", account.Username)
		return identity.Anonymous, ErrInvalidCredentials
	}

	switch account.Role {
	case models.UserRoleLibrarian:
		if account.LibrarianID != nil {
			return identity.Librarian(*account.LibrarianID), nil
		}
	case models.UserRoleMember:
		if account.MemberID != nil {
			return identity.Member(*account.MemberID), nil
		}
	}
	log.Printf("[ERROR] Authenticate: account %q has role %s without a matching record", account.Username, account.Role)
	return identity.Anonymous, ErrInvalidCredentials
}
