package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/umlstudio/engine/internal/models"
	appErr "github.com/umlstudio/engine/pkg/errors"
)

type DiagramRepository interface {
	BaseRepository[models.RoomDiagram]
	GetCurrentByRoom(ctx context.Context, roomID string, dest *models.RoomDiagram) error
	GetByVersion(ctx context.Context, roomID string, version int, dest *models.RoomDiagram) error
	ListByRoom(ctx context.Context, roomID string) ([]models.RoomDiagram, error)
	NextVersion(ctx context.Context, roomID string) (int, error)
	SetCurrent(ctx context.Context, roomID string, version int) error
	WithTx(tx *gorm.DB) DiagramRepository
}

type diagramRepository struct {
	BaseRepository[models.RoomDiagram]
	db *gorm.DB
}

func NewDiagramRepository(db *gorm.DB) DiagramRepository {
	return &diagramRepository{BaseRepository: NewBaseRepository[models.RoomDiagram](db), db: db}
}

// WithTx returns a repository bound to tx.
func (r *diagramRepository) WithTx(tx *gorm.DB) DiagramRepository {
	return NewDiagramRepository(tx)
}

func (r *diagramRepository) GetCurrentByRoom(ctx context.Context, roomID string, dest *models.RoomDiagram) error {
	if err := r.db.WithContext(ctx).Where("room_id = ? AND is_current = true", roomID).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no current diagram found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get current diagram failed")
	}
	return nil
}

func (r *diagramRepository) GetByVersion(ctx context.Context, roomID string, version int, dest *models.RoomDiagram) error {
	if err := r.db.WithContext(ctx).Where("room_id = ? AND version = ?", roomID, version).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "diagram version not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get diagram version failed")
	}
	return nil
}

// ListByRoom returns version metadata, newest first, without the diagram body.
func (r *diagramRepository) ListByRoom(ctx context.Context, roomID string) ([]models.RoomDiagram, error) {
	var out []models.RoomDiagram
	err := r.db.WithContext(ctx).
		Omit("diagram").
		Where("room_id = ?", roomID).
		Order("version DESC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list diagrams failed")
	}
	return out, nil
}

func (r *diagramRepository) NextVersion(ctx context.Context, roomID string) (int, error) {
	var maxVersion int
	err := r.db.WithContext(ctx).Model(&models.RoomDiagram{}).
		Where("room_id = ?", roomID).
		Select("COALESCE(MAX(version),0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "compute diagram version failed")
	}
	return maxVersion + 1, nil
}

// SetCurrent marks the given version current and clears the previous flag in
// one transaction. The flag is cleared first so that at most one row per room
// is ever current.
func (r *diagramRepository) SetCurrent(ctx context.Context, roomID string, version int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.RoomDiagram{}).
			Where("room_id = ? AND version <> ? AND is_current = true", roomID, version).
			Update("is_current", false).Error
		if err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "clear current flag failed")
		}
		res := tx.Model(&models.RoomDiagram{}).Where("room_id = ? AND version = ?", roomID, version).Update("is_current", true)
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "set current flag failed")
		}
		if res.RowsAffected == 0 {
			return appErr.New(appErr.CodeNotFound, "diagram version not found")
		}
		return nil
	})
}
