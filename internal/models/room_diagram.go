package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RoomDiagram is one stored snapshot of a room's diagram. Exactly one
// version per room carries IsCurrent.
type RoomDiagram struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RoomID      string         `gorm:"type:varchar(64);not null;index:idx_room_diagram_version,unique" json:"room_id" validate:"required"`
	Version     int            `gorm:"not null;index:idx_room_diagram_version,unique" json:"version" validate:"gte=1"`
	Diagram     datatypes.JSON `gorm:"type:jsonb" json:"diagram,omitempty" validate:"required"`
	ContentHash string         `gorm:"type:char(64);index" json:"content_hash"`
	AuthorID    string         `gorm:"type:varchar(128)" json:"author_id"`
	AuthorName  string         `gorm:"type:varchar(128)" json:"author_name"`
	IsCurrent   bool           `gorm:"not null;default:false;index" json:"is_current"`
	CreatedAt   time.Time      `json:"created_at"`
}
