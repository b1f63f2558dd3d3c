package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lending/internal/models"
)

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

func (r *sequenceRepository) Next(db *gorm.DB, name string, start int64) (int64, error) {
	if db == nil {
		db = r.db
	}
	// Concurrent first use of a sequence collapses into a single row.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Sequence{Name: name, NextValue: start}).Error; err != nil {
		return 0, err
	}
	var seq models.Sequence
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&seq, "name = ?", name).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&models.Sequence{}).
		Where("name = ?", name).
		UpdateColumn("next_value", seq.NextValue+1).Error; err != nil {
		return 0, err
	}
	return seq.NextValue, nil
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	// Links are written explicitly by the catalog repository.
	return db.Omit(clause.Associations).Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Preload("Authors").Preload("Categories").Order("id").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id int64) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.Preload("Authors").Preload("Categories").First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id int64) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) UpdateDetails(db *gorm.DB, id int64, title, edition string) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"title":   title,
			"edition": edition,
		}).Error
}

func (r *bookRepository) Delete(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Book{}, "id = ?", book.ID).Error
}

func (r *bookRepository) AdjustCopies(db *gorm.DB, bookID int64, totalDelta, availableDelta int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ?", bookID).
		Where("total_copies + ? >= 0", totalDelta).
		Where("available_copies + ? >= 0", availableDelta).
		Where("available_copies + ? <= total_copies + ?", availableDelta, totalDelta).
		UpdateColumns(map[string]interface{}{
			"total_copies":     gorm.Expr("total_copies + ?", totalDelta),
			"available_copies": gorm.Expr("available_copies + ?", availableDelta),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *bookRepository) SetCounters(db *gorm.DB, bookID int64, total, available int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", bookID).
		UpdateColumns(map[string]interface{}{
			"total_copies":     total,
			"available_copies": available,
		}).Error
}

type bookCopyRepository struct {
	db *gorm.DB
}

func NewBookCopyRepository(db *gorm.DB) BookCopyRepository {
	return &bookCopyRepository{db: db}
}

func (r *bookCopyRepository) Create(db *gorm.DB, copy *models.BookCopy) error {
	if db == nil {
		db = r.db
	}
	return db.Omit("Book").Create(copy).Error
}

func (r *bookCopyRepository) GetByIDForUpdate(db *gorm.DB, id int64) (*models.BookCopy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.BookCopy
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&copy, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *bookCopyRepository) ListByBook(db *gorm.DB, bookID int64) ([]models.BookCopy, error) {
	if db == nil {
		db = r.db
	}
	var copies []models.BookCopy
	if err := db.Where("book_id = ?", bookID).Order("id").Find(&copies).Error; err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *bookCopyRepository) FindAvailableForUpdate(db *gorm.DB, bookID int64) (*models.BookCopy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.BookCopy
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("book_id = ? AND status = ?", bookID, models.BookCopyStatusAvailable).
		Order("id").
		First(&copy).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *bookCopyRepository) LockAvailable(db *gorm.DB, bookID int64, limit int) ([]models.BookCopy, error) {
	if db == nil {
		db = r.db
	}
	var copies []models.BookCopy
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("book_id = ? AND status = ?", bookID, models.BookCopyStatusAvailable).
		Order("id").
		Limit(limit).
		Find(&copies).Error
	if err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *bookCopyRepository) TransitionStatus(db *gorm.DB, id int64, from, to models.BookCopyStatus) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.BookCopy{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteByIDs soft-deletes copies; loans keep pointing at the retired rows.
func (r *bookCopyRepository) DeleteByIDs(db *gorm.DB, ids []int64) error {
	if db == nil {
		db = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return db.Where("id IN ?", ids).Delete(&models.BookCopy{}).Error
}

func (r *bookCopyRepository) DeleteByBook(db *gorm.DB, bookID int64) error {
	if db == nil {
		db = r.db
	}
	return db.Where("book_id = ?", bookID).Delete(&models.BookCopy{}).Error
}

func (r *bookCopyRepository) ListByStatus(db *gorm.DB, status models.BookCopyStatus) ([]models.BookCopy, error) {
	if db == nil {
		db = r.db
	}
	var copies []models.BookCopy
	if err := db.Where("status = ?", status).Order("book_id, id").Find(&copies).Error; err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *bookCopyRepository) CountByBookAndStatus(db *gorm.DB, bookID int64, status models.BookCopyStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.BookCopy{}).
		Where("book_id = ? AND status = ?", bookID, status).
		Count(&n).Error
	return n, err
}

func (r *bookCopyRepository) CountByBook(db *gorm.DB, bookID int64) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.BookCopy{}).Where("book_id = ?", bookID).Count(&n).Error
	return n, err
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) CreateAuthor(db *gorm.DB, author *models.Author) error {
	if db == nil {
		db = r.db
	}
	return db.Create(author).Error
}

func (r *catalogRepository) ListAuthors(db *gorm.DB) ([]models.Author, error) {
	if db == nil {
		db = r.db
	}
	var authors []models.Author
	if err := db.Order("id").Find(&authors).Error; err != nil {
		return nil, err
	}
	return authors, nil
}

func (r *catalogRepository) GetAuthorsByIDs(db *gorm.DB, ids []int64) ([]models.Author, error) {
	if db == nil {
		db = r.db
	}
	var authors []models.Author
	if len(ids) == 0 {
		return authors, nil
	}
	if err := db.Where("id IN ?", ids).Order("id").Find(&authors).Error; err != nil {
		return nil, err
	}
	return authors, nil
}

func (r *catalogRepository) CreateCategory(db *gorm.DB, category *models.Category) error {
	if db == nil {
		db = r.db
	}
	return db.Create(category).Error
}

func (r *catalogRepository) ListCategories(db *gorm.DB) ([]models.Category, error) {
	if db == nil {
		db = r.db
	}
	var categories []models.Category
	if err := db.Order("id").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *catalogRepository) GetCategoriesByIDs(db *gorm.DB, ids []int64) ([]models.Category, error) {
	if db == nil {
		db = r.db
	}
	var categories []models.Category
	if len(ids) == 0 {
		return categories, nil
	}
	if err := db.Where("id IN ?", ids).Order("id").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *catalogRepository) LinkAuthors(db *gorm.DB, book *models.Book, authors []models.Author) error {
	if db == nil {
		db = r.db
	}
	if len(authors) == 0 {
		return nil
	}
	return db.Model(book).Association("Authors").Append(authors)
}

func (r *catalogRepository) LinkCategories(db *gorm.DB, book *models.Book, categories []models.Category) error {
	if db == nil {
		db = r.db
	}
	if len(categories) == 0 {
		return nil
	}
	return db.Model(book).Association("Categories").Append(categories)
}

func (r *catalogRepository) ClearLinks(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	if err := db.Model(book).Association("Authors").Clear(); err != nil {
		return err
	}
	return db.Model(book).Association("Categories").Clear()
}
