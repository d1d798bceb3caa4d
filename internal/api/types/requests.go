package types

import "encoding/json"

type RoomCreateRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64,excludesall=/?#"`
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description"`
}

type RoomUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=128"`
	Description *string `json:"description"`
	Archived    *bool   `json:"archived"`
}

// DiagramSaveRequest carries a full diagram snapshot.
type DiagramSaveRequest struct {
	Diagram json.RawMessage `json:"diagram" validate:"required"`
}

type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"required,max=4000"`
	Style  string `json:"style" validate:"omitempty,oneof=class"`
}

type ExportRequest struct {
	Diagram json.RawMessage `json:"diagram" validate:"required"`
	Scale   float64         `json:"scale" validate:"omitempty,gt=0,lte=8"`
}
