package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/models"
	"github.com/umlstudio/engine/internal/realtime"
	"github.com/umlstudio/engine/internal/repository"
	appErr "github.com/umlstudio/engine/pkg/errors"
	"github.com/umlstudio/engine/pkg/logger"
	"github.com/umlstudio/engine/pkg/utils"
)

type RoomService interface {
	// Room CRUD
	CreateRoom(ctx context.Context, ownerID string, input *CreateRoomInput) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	ListRooms(ctx context.Context, filter repository.RoomFilter) ([]models.Room, int64, error)
	UpdateRoom(ctx context.Context, roomID string, input *UpdateRoomInput) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error

	// Diagram versions
	SaveDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) (*models.RoomDiagram, bool, error)
	CurrentDiagram(ctx context.Context, roomID string) (*models.RoomDiagram, error)
	GetDiagramVersion(ctx context.Context, roomID string, version int) (*models.RoomDiagram, error)
	ListDiagramVersions(ctx context.Context, roomID string) ([]models.RoomDiagram, error)
	RestoreVersion(ctx context.Context, roomID string, version int) (*models.RoomDiagram, error)

	// LoadDiagram and PersistDiagram serve the realtime hub.
	LoadDiagram(ctx context.Context, roomID string) (diagram.State, bool, error)
	PersistDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) error
}

type CreateRoomInput struct {
	ID          string
	Name        string
	Description string
}

type UpdateRoomInput struct {
	Name        *string
	Description *string
	Archived    *bool
}

type roomService struct {
	db       *gorm.DB
	rooms    repository.RoomRepository
	diagrams repository.DiagramRepository
	log      *zap.Logger
}

func NewRoomService(db *gorm.DB, rooms repository.RoomRepository, diagrams repository.DiagramRepository) RoomService {
	return &roomService{db: db, rooms: rooms, diagrams: diagrams, log: logger.Named("rooms")}
}

var _ RoomService = (*roomService)(nil)

func (s *roomService) CreateRoom(ctx context.Context, ownerID string, input *CreateRoomInput) (*models.Room, error) {
	s.log.Info("create room called", zap.String("owner_id", ownerID), zap.String("name", input.Name))
	room := &models.Room{
		ID:          input.ID,
		Name:        input.Name,
		Description: input.Description,
		OwnerID:     ownerID,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}
	s.log.Info("room created", zap.String("room_id", room.ID))
	return room, nil
}

func (s *roomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := s.rooms.GetByID(ctx, roomID, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *roomService) ListRooms(ctx context.Context, filter repository.RoomFilter) ([]models.Room, int64, error) {
	return s.rooms.List(ctx, filter)
}

func (s *roomService) UpdateRoom(ctx context.Context, roomID string, input *UpdateRoomInput) (*models.Room, error) {
	s.log.Info("update room", zap.String("room_id", roomID))
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		room.Name = *input.Name
	}
	if input.Description != nil {
		room.Description = *input.Description
	}
	if input.Archived != nil {
		room.Archived = *input.Archived
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *roomService) DeleteRoom(ctx context.Context, roomID string) error {
	s.log.Info("delete room", zap.String("room_id", roomID))
	return s.rooms.Delete(ctx, roomID)
}

// SaveDiagram stores state as the room's next current version. When the
// structural content equals the current version nothing is written and the
// current version is returned with created=false.
func (s *roomService) SaveDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) (*models.RoomDiagram, bool, error) {
	body, hash, err := encodeDiagram(state)
	if err != nil {
		return nil, false, err
	}
	if err := s.rooms.Ensure(ctx, roomID); err != nil {
		return nil, false, err
	}

	var (
		saved   models.RoomDiagram
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.diagrams.WithTx(tx)

		var current models.RoomDiagram
		err := repo.GetCurrentByRoom(ctx, roomID, &current)
		switch {
		case err == nil && current.ContentHash == hash:
			saved = current
			return nil
		case err != nil && !appErr.IsCode(err, appErr.CodeNotFound):
			return err
		}

		next, err := repo.NextVersion(ctx, roomID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.RoomDiagram{}).Where("room_id = ? AND is_current = true", roomID).Update("is_current", false).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "mark previous diagrams failed")
		}

		saved = models.RoomDiagram{
			RoomID:      roomID,
			Version:     next,
			Diagram:     datatypes.JSON(body),
			ContentHash: hash,
			AuthorID:    author.UserID,
			AuthorName:  author.UserName,
			IsCurrent:   true,
		}
		if err := repo.Create(ctx, &saved); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.log.Info("diagram saved", zap.String("room_id", roomID), zap.Int("version", saved.Version), zap.String("author", author.UserID))
	} else {
		s.log.Debug("diagram unchanged", zap.String("room_id", roomID), zap.Int("version", saved.Version))
	}
	return &saved, created, nil
}

func (s *roomService) CurrentDiagram(ctx context.Context, roomID string) (*models.RoomDiagram, error) {
	var d models.RoomDiagram
	if err := s.diagrams.GetCurrentByRoom(ctx, roomID, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *roomService) GetDiagramVersion(ctx context.Context, roomID string, version int) (*models.RoomDiagram, error) {
	var d models.RoomDiagram
	if err := s.diagrams.GetByVersion(ctx, roomID, version, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *roomService) ListDiagramVersions(ctx context.Context, roomID string) ([]models.RoomDiagram, error) {
	return s.diagrams.ListByRoom(ctx, roomID)
}

func (s *roomService) RestoreVersion(ctx context.Context, roomID string, version int) (*models.RoomDiagram, error) {
	s.log.Info("restore diagram version", zap.String("room_id", roomID), zap.Int("version", version))
	if err := s.diagrams.SetCurrent(ctx, roomID, version); err != nil {
		return nil, err
	}
	return s.GetDiagramVersion(ctx, roomID, version)
}

// LoadDiagram returns the room's current diagram, or ok=false for a room
// that has never been saved.
func (s *roomService) LoadDiagram(ctx context.Context, roomID string) (diagram.State, bool, error) {
	d, err := s.CurrentDiagram(ctx, roomID)
	if appErr.IsCode(err, appErr.CodeNotFound) {
		return diagram.State{}, false, nil
	}
	if err != nil {
		return diagram.State{}, false, err
	}
	state, err := DecodeDiagram(d.Diagram)
	if err != nil {
		return diagram.State{}, false, err
	}
	return state, true, nil
}

func (s *roomService) PersistDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) error {
	_, _, err := s.SaveDiagram(ctx, roomID, state, author)
	return err
}

// DecodeDiagram parses a stored diagram body.
func DecodeDiagram(body []byte) (diagram.State, error) {
	var state diagram.State
	if err := json.Unmarshal(body, &state); err != nil {
		return diagram.State{}, appErr.Wrap(err, appErr.CodeInternal, "decode stored diagram failed")
	}
	return diagram.Load(state), nil
}

// structure is the part of a diagram that versions are compared on.
type structure struct {
	Classes       []diagram.Class        `json:"classes"`
	Relationships []diagram.Relationship `json:"relationships"`
	Interfaces    []diagram.Interface    `json:"interfaces"`
	Packages      []diagram.Package      `json:"packages"`
	Notes         []diagram.Note         `json:"notes"`
}

// encodeDiagram returns the stored body and the hash of its structure.
// Selection is per-user and never stored.
func encodeDiagram(state diagram.State) ([]byte, string, error) {
	state = state.Clone()
	state.SelectedElements = []string{}

	body, err := json.Marshal(state)
	if err != nil {
		return nil, "", appErr.Wrap(err, appErr.CodeInvalid, "invalid diagram json")
	}
	key, err := json.Marshal(structure{
		Classes:       state.Classes,
		Relationships: state.Relationships,
		Interfaces:    state.Interfaces,
		Packages:      state.Packages,
		Notes:         state.Notes,
	})
	if err != nil {
		return nil, "", appErr.Wrap(err, appErr.CodeInvalid, "invalid diagram json")
	}
	return body, utils.ContentHash(key), nil
}
