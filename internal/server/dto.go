package server

import (
	"encoding/json"

	"designflow/internal/domain"
)

// Request payloads

type CreateDesignerRequest struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name" minLength:"1"`
	Role          string   `json:"role,omitempty"`
	Avatar        string   `json:"avatar,omitempty" format:"uri"`
	Skills        []string `json:"skills,omitempty"`
	CapacityHours float64  `json:"capacity_hours" exclusiveMinimum:"0"`
}

type SubmitRequestRequest struct {
	ID               string  `json:"id,omitempty"`
	Title            string  `json:"title" minLength:"1"`
	Client           string  `json:"client,omitempty"`
	Requestor        string  `json:"requestor,omitempty"`
	Description      string  `json:"description,omitempty"`
	Type             string  `json:"type" minLength:"1" example:"Web Design"`
	BusinessFunction string  `json:"business_function" minLength:"1" example:"Marketing"`
	Priority         string  `json:"priority,omitempty" enum:"Low,Medium,High,Urgent"`
	EstimatedHours   float64 `json:"estimated_hours,omitempty" minimum:"0"`
	DueDate          string  `json:"due_date" format:"date"`
}

type AssignRequest struct {
	DesignerID string `json:"designer_id" minLength:"1"`
}

type FeedbackRequest struct {
	Type    string `json:"type" enum:"General,Approval,Change Request"`
	Content string `json:"content,omitempty"`
	Author  string `json:"author,omitempty"`
	Role    string `json:"role,omitempty" enum:"Client,Designer,Manager"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"Pending,In Progress,Review,Completed,Blocked"`
}

type ApplySuggestionRequest struct {
	RequestID  string `json:"request_id" minLength:"1"`
	DesignerID string `json:"designer_id" minLength:"1"`
	Rationale  string `json:"rationale,omitempty"`
}

type InsightsRequest struct {
	Period string `json:"period,omitempty" example:"month"`
}

type ScheduleShiftRequest struct {
	DesignerID string `json:"designer_id" minLength:"1"`
	Date       string `json:"date" format:"date"`
	Type       string `json:"type" enum:"Morning,Evening,Full,Off"`
}

// Response payloads

type SuggestionsResponse struct {
	Items []domain.Suggestion `json:"items"`
}

type InsightsResponse struct {
	Period string `json:"period"`
	Text   string `json:"text"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	out := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err == nil {
			out.Payload = payload
		}
	}
	return out
}
