package domain

// Action is an operation a caller performs on a Model's records.
type Action string

const (
	ActionList   Action = "list"
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Permission returns the API key permission that covers the action.
func (a Action) Permission() string {
	switch a {
	case ActionList, ActionView:
		return "read"
	default:
		return string(a)
	}
}

// Record mutation events delivered to webhooks and broadcast subscribers.
const (
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventDeleted  = "deleted"
	EventRestored = "restored"
)

// System columns every record table may carry.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnDeletedAt = "deleted_at"
)

// TimestampLayout is the storage format for system timestamps.
const TimestampLayout = "2006-01-02 15:04:05"
