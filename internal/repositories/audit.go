package repositories

import (
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"gorm.io/gorm"

	"lending/internal/models"
)

// CopyCounts compares a book's cached counters with the copy rows that back them.
type CopyCounts struct {
	BookID          int64 `gorm:"column:book_id" json:"book_id"`
	TotalCopies     int   `gorm:"column:total_copies" json:"total_copies"`
	AvailableCopies int   `gorm:"column:available_copies" json:"available_copies"`
	CopyCount       int   `gorm:"column:copy_count" json:"copy_count"`
	BorrowedCount   int   `gorm:"column:borrowed_count" json:"borrowed_count"`
}

// ExpectedAvailable is the value available_copies must hold given the copy rows.
func (c CopyCounts) ExpectedAvailable() int {
	return c.CopyCount - c.BorrowedCount
}

// Drifted reports whether either cached counter disagrees with the copy rows.
func (c CopyCounts) Drifted() bool {
	return c.TotalCopies != c.CopyCount || c.AvailableCopies != c.ExpectedAvailable()
}

type AuditRepository interface {
	// CopyCounts returns one row per book. When bookIDs is non-empty only those books are read.
	CopyCounts(db *gorm.DB, bookIDs ...int64) ([]CopyCounts, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) CopyCounts(db *gorm.DB, bookIDs ...int64) ([]CopyCounts, error) {
	if db == nil {
		db = r.db
	}
	query, err := copyCountsSQL(db.Dialector.Name(), bookIDs)
	if err != nil {
		return nil, err
	}
	var rows []CopyCounts
	if err := db.Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func goquDialect(gormDialect string) (string, error) {
	switch gormDialect {
	case "postgres":
		return "postgres", nil
	case "sqlite":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("audit: unsupported dialect %q", gormDialect)
	}
}

// copyCountsSQL renders the audit query with values interpolated, so it can be handed to
// gorm's Raw without placeholder translation. Soft-deleted books and copies are left out.
func copyCountsSQL(gormDialect string, bookIDs []int64) (string, error) {
	dialect, err := goquDialect(gormDialect)
	if err != nil {
		return "", err
	}
	borrowed := goqu.Case().
		When(goqu.I("c.status").Eq(string(models.BookCopyStatusBorrowed)), 1).
		Else(0)

	ds := goqu.Dialect(dialect).
		From(goqu.T("books").As("b")).
		LeftJoin(goqu.T("book_copies").As("c"), goqu.On(
			goqu.I("c.book_id").Eq(goqu.I("b.id")),
			goqu.I("c.deleted_at").IsNull(),
		)).
		Select(
			goqu.I("b.id").As("book_id"),
			goqu.I("b.total_copies").As("total_copies"),
			goqu.I("b.available_copies").As("available_copies"),
			goqu.COUNT(goqu.I("c.id")).As("copy_count"),
			goqu.COALESCE(goqu.SUM(borrowed), 0).As("borrowed_count"),
		).
		Where(goqu.I("b.deleted_at").IsNull()).
		GroupBy(goqu.I("b.id"), goqu.I("b.total_copies"), goqu.I("b.available_copies")).
		Order(goqu.I("b.id").Asc())
	if len(bookIDs) > 0 {
		ds = ds.Where(goqu.I("b.id").In(bookIDs))
	}
	query, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("audit: build copy counts query: %w", err)
	}
	return query, nil
}
