package domain

// DateLayout is the calendar date format used for due and start dates.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusReview     Status = "Review"
	StatusCompleted  Status = "Completed"
	StatusBlocked    Status = "Blocked"
)

// Statuses lists every declared request status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusReview, StatusCompleted, StatusBlocked}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

type FeedbackType string

const (
	FeedbackGeneral       FeedbackType = "General"
	FeedbackApproval      FeedbackType = "Approval"
	FeedbackChangeRequest FeedbackType = "Change Request"
)

func (t FeedbackType) Valid() bool {
	return t == FeedbackGeneral || t == FeedbackApproval || t == FeedbackChangeRequest
}

type Role string

const (
	RoleClient   Role = "Client"
	RoleDesigner Role = "Designer"
	RoleManager  Role = "Manager"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleDesigner || r == RoleManager
}

type Designer struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Role          string   `json:"role"`
	Avatar        string   `json:"avatar,omitempty"`
	Skills        []string `json:"skills"`
	CapacityHours float64  `json:"capacity_hours"`
	AssignedHours float64  `json:"assigned_hours"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
}

// OverAllocated reports whether the designer carries more load than capacity.
func (d Designer) OverAllocated() bool {
	return d.AssignedHours > d.CapacityHours
}

type DesignRequest struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Client           string     `json:"client"`
	Requestor        string     `json:"requestor"`
	Description      string     `json:"description,omitempty"`
	Type             string     `json:"type"`
	BusinessFunction string     `json:"business_function"`
	Priority         Priority   `json:"priority" enum:"Low,Medium,High,Urgent"`
	Status           Status     `json:"status" enum:"Pending,In Progress,Review,Completed,Blocked"`
	EstimatedHours   float64    `json:"estimated_hours"`
	DueDate          string     `json:"due_date" format:"date"`
	AssignedTo       *string    `json:"assigned_to,omitempty"`
	StartDate        *string    `json:"start_date,omitempty" format:"date"`
	Feedback         []Feedback `json:"feedback"`
	CreatedAt        string     `json:"created_at" format:"date-time"`
	UpdatedAt        string     `json:"updated_at" format:"date-time"`
}

// Assigned reports whether the request has an owner.
func (r DesignRequest) Assigned() bool {
	return r.AssignedTo != nil && *r.AssignedTo != ""
}

type Feedback struct {
	ID      string       `json:"id"`
	Author  string       `json:"author"`
	Role    Role         `json:"role" enum:"Client,Designer,Manager"`
	Content string       `json:"content"`
	Date    string       `json:"date" format:"date-time"`
	Type    FeedbackType `json:"type" enum:"General,Approval,Change Request"`
}

// Suggestion is an advisory request-to-designer pairing. It is never applied
// without re-validation against the store.
type Suggestion struct {
	RequestID  string `json:"requestId"`
	DesignerID string `json:"designerId"`
	Rationale  string `json:"rationale"`
}

type ShiftType string

const (
	ShiftMorning ShiftType = "Morning"
	ShiftEvening ShiftType = "Evening"
	ShiftFull    ShiftType = "Full"
	ShiftOff     ShiftType = "Off"
)

type Shift struct {
	ID         string    `json:"id"`
	DesignerID string    `json:"designer_id"`
	Date       string    `json:"date" format:"date"`
	Type       ShiftType `json:"type" enum:"Morning,Evening,Full,Off"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
