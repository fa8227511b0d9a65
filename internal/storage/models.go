package storage

// User represents a bot user record
type User struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name,omitempty"`
	FollowedAt    int64  `json:"followed_at"`
	LastMessageAt int64  `json:"last_message_at"`
}

// Session represents a user's conversation session.
// FlowName is empty when no flow is active; CurrentStep and StepData are
// not read by any handler in that state.
type Session struct {
	UserID        string            `json:"user_id"`
	FlowName      string            `json:"flow_name,omitempty"`
	CurrentStep   string            `json:"current_step,omitempty"`
	StepData      map[string]string `json:"step_data,omitempty"`
	ExpiresAt     int64             `json:"expires_at,omitempty"`
	LastMessageAt int64             `json:"last_message_at"`
}

// Reminder kinds
const (
	ReminderMedication  = "medication"
	ReminderAppointment = "appointment"
)

// HealthReminder represents a medication or appointment reminder
type HealthReminder struct {
	ID            int64    `json:"id"`
	UserID        string   `json:"user_id"`
	Kind          string   `json:"kind"` // "medication" or "appointment"
	Title         string   `json:"title"`
	Times         []string `json:"times,omitempty"`          // medication only, "HH:MM" entries
	AppointmentAt int64    `json:"appointment_at,omitempty"` // appointment only
	Location      string   `json:"location,omitempty"`
	Department    string   `json:"department,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	LastSentAt    int64    `json:"last_sent_at"`
}

// Group represents a meetup group (揪團).
// CurrentParticipants always reflects approved members only.
type Group struct {
	ID                  string `json:"id"`
	OwnerID             string `json:"owner_id"`
	Title               string `json:"title"`
	EventAt             int64  `json:"event_at"`
	Location            string `json:"location"`
	MaxParticipants     int    `json:"max_participants"`
	CurrentParticipants int    `json:"current_participants"`
	CreatedAt           int64  `json:"created_at"`
}

// Group member statuses
const (
	MemberApproved = "approved"
	MemberPending  = "pending"
)

// GroupMember represents one user's membership in a group
type GroupMember struct {
	GroupID  string `json:"group_id"`
	UserID   string `json:"user_id"`
	Status   string `json:"status"` // "approved" or "pending"
	JoinedAt int64  `json:"joined_at"`
}

// TourPlan represents a saved AI-generated itinerary
type TourPlan struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Destination string `json:"destination"`
	Days        int    `json:"days"`
	Content     string `json:"content"` // itinerary JSON as produced by the generator
	CreatedAt   int64  `json:"created_at"`
}

// Activity represents a recommended activity for retirees
type Activity struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	ScheduledAt int64  `json:"scheduled_at"`
}

// FamilyLink represents a linked family contact
type FamilyLink struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Relation    string `json:"relation,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}
