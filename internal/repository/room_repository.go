package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/umlstudio/engine/internal/models"
	appErr "github.com/umlstudio/engine/pkg/errors"
)

type RoomRepository interface {
	BaseRepository[models.Room]
	List(ctx context.Context, filter RoomFilter) ([]models.Room, int64, error)
	Ensure(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
}

// RoomFilter pages through rooms. Page is 1-based.
type RoomFilter struct {
	OwnerID         string
	IncludeArchived bool
	Page            int
	PageSize        int
}

type roomRepository struct {
	BaseRepository[models.Room]
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{BaseRepository: NewBaseRepository[models.Room](db), db: db}
}

func (r *roomRepository) List(ctx context.Context, f RoomFilter) ([]models.Room, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Room{})
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if !f.IncludeArchived {
		q = q.Where("archived = false")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "count rooms failed")
	}

	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	var out []models.Room
	err := q.Order("created_at DESC").Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).Find(&out).Error
	if err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "list rooms failed")
	}
	return out, total, nil
}

// Ensure creates a room named after id unless it already exists. Rooms joined
// over the socket before anyone created them through the API land here.
func (r *roomRepository) Ensure(ctx context.Context, id string) error {
	room := models.Room{ID: id, Name: id}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&room).Error
	if err != nil {
		return mapError(err, "ensure room failed")
	}
	return nil
}

func (r *roomRepository) Archive(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Update("archived", true)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "archive room failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "room not found")
	}
	return nil
}
