package tracker

// UserRef identifies a tracker user, as embedded in task assignees and
// people-type custom fields.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// CustomField is a single name/value pair on a task. Value is left untyped:
// the tracker serializes strings, numbers, and people lists into the same
// slot depending on the field type.
type CustomField struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
}

// Task is the tracker's record shape, shared by tickets and by the
// reference-data collections (customers, units, market ownership), which
// are all stored as tasks with custom fields.
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
	Assignees    []UserRef     `json:"assignees,omitempty"`
}

// taskListResponse is the envelope for list queries.
type taskListResponse struct {
	Tasks []Task `json:"tasks"`
}
