package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lending/internal/models"
)

type memberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(db *gorm.DB, member *models.Member) error {
	if db == nil {
		db = r.db
	}
	return db.Create(member).Error
}

func (r *memberRepository) List(db *gorm.DB) ([]models.Member, error) {
	if db == nil {
		db = r.db
	}
	var members []models.Member
	if err := db.Order("id").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *memberRepository) GetByID(db *gorm.DB, id int64) (*models.Member, error) {
	if db == nil {
		db = r.db
	}
	var member models.Member
	if err := db.First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByIDForUpdate locks the member row. Loan issuance takes this lock first so that
// concurrent quota checks for the same member are serialized.
func (r *memberRepository) GetByIDForUpdate(db *gorm.DB, id int64) (*models.Member, error) {
	if db == nil {
		db = r.db
	}
	var member models.Member
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&member, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// Update writes the member's editable fields; the id never changes.
func (r *memberRepository) Update(db *gorm.DB, member *models.Member) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Member{}).
		Where("id = ?", member.ID).
		UpdateColumns(map[string]interface{}{
			"name":       member.Name,
			"address":    member.Address,
			"email":      member.Email,
			"phone":      member.Phone,
			"start_date": member.StartDate,
		}).Error
}

type librarianRepository struct {
	db *gorm.DB
}

func NewLibrarianRepository(db *gorm.DB) LibrarianRepository {
	return &librarianRepository{db: db}
}

func (r *librarianRepository) Create(db *gorm.DB, librarian *models.Librarian) error {
	if db == nil {
		db = r.db
	}
	return db.Create(librarian).Error
}

func (r *librarianRepository) GetByID(db *gorm.DB, id int64) (*models.Librarian, error) {
	if db == nil {
		db = r.db
	}
	var librarian models.Librarian
	if err := db.First(&librarian, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &librarian, nil
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(db *gorm.DB, account *models.Account) error {
	if db == nil {
		db = r.db
	}
	return db.Create(account).Error
}

func (r *accountRepository) GetByUsername(db *gorm.DB, username string) (*models.Account, error) {
	if db == nil {
		db = r.db
	}
	var account models.Account
	if err := db.First(&account, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &account, nil
}
