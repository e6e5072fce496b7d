package tracker

// Field is a canonical custom-field name. All field matching goes through
// this type so the name-or-id rule lives in one place instead of being
// duplicated per call site.
type Field string

const (
	FieldCustomerKey     Field = "customer_key"
	FieldUnitKey         Field = "unit_key"
	FieldMarket          Field = "Market"
	FieldVIP             Field = "VIP"
	FieldPrimaryOpsOwner Field = "Primary Ops Owner"
	FieldBackupOpsOwner  Field = "Backup Ops Owner"
)

// knownFieldIDs maps canonical fields to the tracker-assigned field ids.
// Webhook payloads occasionally carry the id without the display name, so
// matching accepts either.
var knownFieldIDs = map[Field]string{
	FieldCustomerKey: "8f687ebc-073d-48c6-ba25-1cae9d16ca3e",
	FieldUnitKey:     "1ee003c2-a0f4-4b03-a39e-81ff13ca244e",
}

// CustomField returns the raw custom field matching the canonical name, or
// nil when the task does not carry it.
func (t *Task) CustomField(field Field) *CustomField {
	id := knownFieldIDs[field]
	for i := range t.CustomFields {
		f := &t.CustomFields[i]
		if f.Name == string(field) {
			return f
		}
		if id != "" && f.ID == id {
			return f
		}
	}
	return nil
}

// StringValue returns the field's value as a string. The second return is
// false when the field is absent, empty, or not string-shaped.
func (t *Task) StringValue(field Field) (string, bool) {
	f := t.CustomField(field)
	if f == nil {
		return "", false
	}
	s, ok := f.Value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// UserValues returns the field's value as tracker user references. People
// fields arrive as a JSON array of user objects.
func (t *Task) UserValues(field Field) []UserRef {
	f := t.CustomField(field)
	if f == nil {
		return nil
	}
	items, ok := f.Value.([]any)
	if !ok {
		return nil
	}
	var users []UserRef
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := m["id"].(float64)
		if !ok || id == 0 {
			continue
		}
		ref := UserRef{ID: int64(id)}
		if name, ok := m["username"].(string); ok {
			ref.Username = name
		}
		users = append(users, ref)
	}
	return users
}
