package domain

import "time"

// FieldType enumerates the input types a survey field can take.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldCheckbox FieldType = "checkbox"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldCheckbox, FieldTextarea, FieldSelect:
		return true
	}
	return false
}

// FreeText reports whether values of this type are free-form text
// (the only types a tag cloud can be computed over).
func (t FieldType) FreeText() bool {
	return t == FieldText || t == FieldTextarea
}

// Survey is one survey definition. ID and Version are zero until the
// survey has been persisted. Field order is significant: it is the order
// presented to respondents and editors.
type Survey struct {
	ID          int      `json:"id,omitempty"`
	Version     int      `json:"version,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Fields      []*Field `json:"fields"`
}

// Field is one question in a survey. A negative ID marks a client-created
// field not yet acknowledged by the server; Name is the stable machine key
// the server assigns from the label on save. Options is non-nil exactly
// when Type is FieldSelect.
type Field struct {
	ID       int       `json:"id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label"`
	Required bool      `json:"required"`
	Options  []*Option `json:"options"`
}

// Option is one selectable choice of a select field. Label is shown to
// respondents, Value is what gets stored in submissions.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Submission is one respondent's answers, keyed by field name.
// Submissions are immutable once fetched.
type Submission struct {
	ID     int                        `json:"id"`
	Time   time.Time                  `json:"time"`
	IP     string                     `json:"ip,omitempty"`
	Fields map[string]SubmissionField `json:"fields"`
}

// SubmissionField is one answered value, tagged with the field id it was
// submitted against.
type SubmissionField struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Value any    `json:"value"`
}
