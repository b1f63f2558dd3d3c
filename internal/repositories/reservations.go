package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lending/internal/models"
)

type reservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(db *gorm.DB, reservation *models.Reservation) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(reservation).Error
}

func (r *reservationRepository) GetByIDForUpdate(db *gorm.DB, id int64) (*models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res models.Reservation
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) UpdateStatus(db *gorm.DB, id int64, from, to models.ReservationStatus, fulfilledLoanID *int64) (bool, error) {
	if db == nil {
		db = r.db
	}
	updates := map[string]interface{}{"status": to}
	if fulfilledLoanID != nil {
		updates["fulfilled_loan_id"] = *fulfilledLoanID
	}
	res := db.Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reservationRepository) List(db *gorm.DB) ([]models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res []models.Reservation
	if err := db.Order("reservation_date ASC, id ASC").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *reservationRepository) ListByBook(db *gorm.DB, bookID int64) ([]models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res []models.Reservation
	if err := db.Where("book_id = ?", bookID).
		Order("reservation_date ASC, id ASC").
		Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *reservationRepository) ListByMember(db *gorm.DB, memberID int64) ([]models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res []models.Reservation
	if err := db.Where("member_id = ?", memberID).
		Order("reservation_date ASC, id ASC").
		Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *reservationRepository) CancelActiveByBook(db *gorm.DB, bookID int64) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Reservation{}).
		Where("book_id = ? AND status = ?", bookID, models.ReservationStatusActive).
		UpdateColumn("status", models.ReservationStatusCancelled)
	return res.RowsAffected, res.Error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(db *gorm.DB, event *models.Event) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(event).Error
}

func (r *eventRepository) List(db *gorm.DB) ([]models.Event, error) {
	if db == nil {
		db = r.db
	}
	var events []models.Event
	if err := db.Order("start_date ASC, id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) GetByIDForUpdate(db *gorm.DB, id int64) (*models.Event, error) {
	if db == nil {
		db = r.db
	}
	var event models.Event
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&event, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) Update(db *gorm.DB, event *models.Event) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Event{}).
		Where("id = ?", event.ID).
		UpdateColumns(map[string]interface{}{
			"name":       event.Name,
			"start_date": event.StartDate,
			"end_date":   event.EndDate,
			"event_time": event.EventTime,
			"member_id":  event.MemberID,
		}).Error
}
