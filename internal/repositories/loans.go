package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lending/internal/models"
)

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id int64) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := db.First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetByIDForUpdate locks the loan row and preloads its copy so callers can reach the book.
func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id int64) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Copy").
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) MarkReturned(db *gorm.DB, loanID int64, returnedOn time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("id = ? AND status = ?", loanID, models.LoanStatusBorrowed).
		UpdateColumns(map[string]interface{}{
			"return_date": returnedOn,
			"status":      models.LoanStatusReturned,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *loanRepository) Delete(db *gorm.DB, id int64) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Loan{}, "id = ?", id).Error
}

func (r *loanRepository) CountActiveByMember(db *gorm.DB, memberID int64) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("member_id = ? AND status = ?", memberID, models.LoanStatusBorrowed).
		Count(&n).Error
	return n, err
}

func (r *loanRepository) CountActiveByCopy(db *gorm.DB, copyID int64) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("copy_id = ? AND status = ?", copyID, models.LoanStatusBorrowed).
		Count(&n).Error
	return n, err
}

func (r *loanRepository) List(db *gorm.DB) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	if err := db.Order("issue_date DESC, id DESC").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListByMember(db *gorm.DB, memberID int64) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	if err := db.Where("member_id = ?", memberID).
		Order("issue_date DESC, id DESC").
		Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListDueBefore(db *gorm.DB, day time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	if err := db.Where("status = ? AND due_date < ?", models.LoanStatusBorrowed, day).
		Order("due_date, id").
		Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// EarliestDueDateForBook returns the soonest due date among the book's borrowed copies,
// or nil when none of its copies is on loan.
func (r *loanRepository) EarliestDueDateForBook(db *gorm.DB, bookID int64) (*time.Time, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Joins("JOIN book_copies ON book_copies.id = loans.copy_id").
		Where("book_copies.book_id = ? AND loans.status = ?", bookID, models.LoanStatusBorrowed).
		Order("loans.due_date ASC").
		Take(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loan.DueDate, nil
}

type fineRepository struct {
	db *gorm.DB
}

func NewFineRepository(db *gorm.DB) FineRepository {
	return &fineRepository{db: db}
}

func (r *fineRepository) Create(db *gorm.DB, fine *models.Fine) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(fine).Error
}

func (r *fineRepository) GetByIDForUpdate(db *gorm.DB, id int64) (*models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fine models.Fine
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&fine, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *fineRepository) GetByLoan(db *gorm.DB, loanID int64) (*models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fine models.Fine
	if err := db.First(&fine, "loan_id = ?", loanID).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *fineRepository) MarkPaid(db *gorm.DB, id int64, paidOn time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Fine{}).
		Where("id = ? AND payment_status = ?", id, models.FineStatusUnpaid).
		UpdateColumns(map[string]interface{}{
			"payment_status": models.FineStatusPaid,
			"payment_date":   paidOn,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *fineRepository) DeleteByLoan(db *gorm.DB, loanID int64) error {
	if db == nil {
		db = r.db
	}
	return db.Where("loan_id = ?", loanID).Delete(&models.Fine{}).Error
}

func (r *fineRepository) List(db *gorm.DB) ([]models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fines []models.Fine
	if err := db.Order("id").Find(&fines).Error; err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *fineRepository) ListByMember(db *gorm.DB, memberID int64) ([]models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fines []models.Fine
	if err := db.
		Joins("JOIN loans ON loans.id = fines.loan_id").
		Where("loans.member_id = ?", memberID).
		Order("fines.id").
		Find(&fines).Error; err != nil {
		return nil, err
	}
	return fines, nil
}
