// Package editor implements the survey editing session: one model owns one
// survey definition and mediates every structural edit, so derived view
// state can never diverge from the definition itself.
package editor

import (
	"encoding/json"
	"strings"

	"survey-service/internal/domain"
	"survey-service/internal/order"
)

// State tracks the editor session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateSaving
	StateSaved
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Model is the single owner of one survey definition for the duration of
// an edit session. It is not safe for concurrent use; edits are driven one
// user action at a time.
type Model struct {
	state  State
	survey *domain.Survey

	// nextFieldID hands out client-local ids for fields created in this
	// session, unique and monotonically decreasing.
	nextFieldID int

	// optionErrs holds per-field option-text parse failures. A field with
	// an entry here is in a well-defined error state distinct from "no
	// options"; its last good options are left untouched.
	optionErrs map[*domain.Field]*domain.ParseError

	lastErr error
}

// NewModel returns an uninitialized editor session.
func NewModel() *Model {
	return &Model{
		state:       StateUninitialized,
		nextFieldID: -1,
		optionErrs:  make(map[*domain.Field]*domain.ParseError),
	}
}

func (m *Model) State() State { return m.state }

// LastError returns the error surfaced by the most recent failed save or
// load, if any.
func (m *Model) LastError() error { return m.lastErr }

// Survey exposes the definition under edit. Callers must not mutate it
// directly; all structural edits go through the model.
func (m *Model) Survey() *domain.Survey { return m.survey }

// BeginLoad marks the session as waiting for an externally fetched
// definition.
func (m *Model) BeginLoad() error {
	if m.state != StateUninitialized {
		return domain.Validationf("cannot load in state %s", m.state)
	}
	m.state = StateLoading
	return nil
}

// LoadFailed records a terminal load failure.
func (m *Model) LoadFailed(err error) {
	m.state = StateError
	m.lastErr = err
}

// Create seeds the model: a blank definition when isNew, else the adopted
// externally fetched one. This is the only way to seed the session.
func (m *Model) Create(isNew bool, existing *domain.Survey) error {
	if m.state != StateUninitialized && m.state != StateLoading {
		return domain.Validationf("cannot create in state %s", m.state)
	}
	if isNew {
		m.survey = &domain.Survey{Fields: []*domain.Field{}}
	} else {
		if existing == nil {
			return domain.Validationf("existing survey definition required")
		}
		m.survey = existing
	}
	m.state = StateReady
	m.lastErr = nil
	return nil
}

func (m *Model) requireReady() error {
	if m.state != StateReady {
		return domain.Validationf("cannot edit in state %s", m.state)
	}
	return nil
}

func (m *Model) requireField(f *domain.Field) error {
	if err := m.requireReady(); err != nil {
		return err
	}
	if order.IndexOf(m.survey.Fields, f) < 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTitle assigns the survey title.
func (m *Model) SetTitle(title string) error {
	if err := m.requireReady(); err != nil {
		return err
	}
	m.survey.Title = title
	return nil
}

// SetDescription assigns the survey description.
func (m *Model) SetDescription(description string) error {
	if err := m.requireReady(); err != nil {
		return err
	}
	m.survey.Description = description
	return nil
}

// AddField appends a new text field with a fresh client-local id and
// returns it for the caller to bind to a view.
func (m *Model) AddField() (*domain.Field, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	f := &domain.Field{
		ID:   m.nextFieldID,
		Type: domain.FieldText,
	}
	m.nextFieldID--
	order.Append(&m.survey.Fields, f)
	return f, nil
}

// RemoveField deletes a field from the survey.
func (m *Model) RemoveField(f *domain.Field) error {
	if err := m.requireReady(); err != nil {
		return err
	}
	if err := order.Remove(&m.survey.Fields, f); err != nil {
		return err
	}
	delete(m.optionErrs, f)
	return nil
}

// MoveFieldUp moves a field one position earlier.
func (m *Model) MoveFieldUp(f *domain.Field) error {
	if err := m.requireReady(); err != nil {
		return err
	}
	return order.MoveUp(m.survey.Fields, f)
}

// MoveFieldDown moves a field one position later.
func (m *Model) MoveFieldDown(f *domain.Field) error {
	if err := m.requireReady(); err != nil {
		return err
	}
	return order.MoveDown(m.survey.Fields, f)
}

// SetFieldType changes a field's type. Entering select initializes an
// empty option list; leaving select discards the options for good.
func (m *Model) SetFieldType(f *domain.Field, t domain.FieldType) error {
	if err := m.requireField(f); err != nil {
		return err
	}
	if !t.Valid() {
		return domain.Validationf("unknown field type %q", t)
	}

	wasSelect := f.Type == domain.FieldSelect
	f.Type = t
	switch {
	case t == domain.FieldSelect && !wasSelect:
		f.Options = []*domain.Option{}
	case t != domain.FieldSelect && wasSelect:
		f.Options = nil
		delete(m.optionErrs, f)
	}
	return nil
}

// SetFieldLabel assigns a field's label.
func (m *Model) SetFieldLabel(f *domain.Field, label string) error {
	if err := m.requireField(f); err != nil {
		return err
	}
	f.Label = label
	return nil
}

// SetFieldRequired flags a field as mandatory for respondents.
func (m *Model) SetFieldRequired(f *domain.Field, required bool) error {
	if err := m.requireField(f); err != nil {
		return err
	}
	f.Required = required
	return nil
}

// AddOption appends a blank option to a select field.
func (m *Model) AddOption(f *domain.Field) (*domain.Option, error) {
	if err := m.requireField(f); err != nil {
		return nil, err
	}
	if f.Type != domain.FieldSelect {
		return nil, domain.Validationf("cannot add option to field of type %q", f.Type)
	}
	o := &domain.Option{}
	order.Append(&f.Options, o)
	return o, nil
}

// RemoveOption deletes an option from a field.
func (m *Model) RemoveOption(f *domain.Field, o *domain.Option) error {
	if err := m.requireField(f); err != nil {
		return err
	}
	return order.Remove(&f.Options, o)
}

// MoveOptionUp moves an option one position earlier within its field.
func (m *Model) MoveOptionUp(f *domain.Field, o *domain.Option) error {
	if err := m.requireField(f); err != nil {
		return err
	}
	return order.MoveUp(f.Options, o)
}

// MoveOptionDown moves an option one position later within its field.
func (m *Model) MoveOptionDown(f *domain.Field, o *domain.Option) error {
	if err := m.requireField(f); err != nil {
		return err
	}
	return order.MoveDown(f.Options, o)
}

// SetOptionLabel assigns an option's label, trimmed of surrounding
// whitespace.
func (m *Model) SetOptionLabel(f *domain.Field, o *domain.Option, label string) error {
	if err := m.requireOption(f, o); err != nil {
		return err
	}
	o.Label = strings.TrimSpace(label)
	return nil
}

// SetOptionValue assigns an option's stored value, trimmed. A non-empty
// value colliding with another option of the same field is rejected:
// duplicate values would silently merge aggregation counts.
func (m *Model) SetOptionValue(f *domain.Field, o *domain.Option, value string) error {
	if err := m.requireOption(f, o); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value != "" {
		for _, other := range f.Options {
			if other != o && other.Value == value {
				return domain.Validationf("duplicate option value %q", value)
			}
		}
	}
	o.Value = value
	return nil
}

func (m *Model) requireOption(f *domain.Field, o *domain.Option) error {
	if err := m.requireField(f); err != nil {
		return err
	}
	if order.IndexOf(f.Options, o) < 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ParseOptionsFromText replaces a select field's options with ones parsed
// from raw JSON text. Blank input clears the options. A parse failure
// leaves the last good options in place and records a typed ParseError
// for the field instead of storing the error as data.
func (m *Model) ParseOptionsFromText(f *domain.Field, text string) error {
	if err := m.requireField(f); err != nil {
		return err
	}

	if strings.TrimSpace(text) == "" {
		f.Options = nil
		delete(m.optionErrs, f)
		return nil
	}

	if f.Type != domain.FieldSelect {
		return domain.Validationf("cannot set options on field of type %q", f.Type)
	}

	var opts []*domain.Option
	if err := json.Unmarshal([]byte(text), &opts); err != nil {
		perr := &domain.ParseError{Raw: text, Err: err}
		m.optionErrs[f] = perr
		return perr
	}

	seen := make(map[string]bool, len(opts))
	for _, o := range opts {
		o.Label = strings.TrimSpace(o.Label)
		o.Value = strings.TrimSpace(o.Value)
		if o.Value != "" && seen[o.Value] {
			return domain.Validationf("duplicate option value %q", o.Value)
		}
		seen[o.Value] = true
	}

	if opts == nil {
		opts = []*domain.Option{}
	}
	f.Options = opts
	delete(m.optionErrs, f)
	return nil
}

// OptionsError returns the pending option-text parse failure for a field,
// or nil when the field's options are well-formed.
func (m *Model) OptionsError(f *domain.Field) *domain.ParseError {
	return m.optionErrs[f]
}

// WireFormat serializes the definition for the persistence API: a copy of
// the survey with client-local negative field ids stripped. Existing
// surveys keep id and version for the optimistic-lock update.
func (m *Model) WireFormat() (*domain.Survey, error) {
	if m.state != StateReady && m.state != StateSaving {
		return nil, domain.Validationf("cannot serialize in state %s", m.state)
	}
	if len(m.optionErrs) > 0 {
		return nil, domain.Validationf("unresolved option parse errors")
	}

	out := &domain.Survey{
		ID:          m.survey.ID,
		Version:     m.survey.Version,
		Title:       m.survey.Title,
		Description: m.survey.Description,
		Fields:      make([]*domain.Field, 0, len(m.survey.Fields)),
	}
	for _, f := range m.survey.Fields {
		wf := &domain.Field{
			Name:     f.Name,
			Type:     f.Type,
			Label:    f.Label,
			Required: f.Required,
		}
		if f.ID > 0 {
			wf.ID = f.ID
		}
		if f.Options != nil {
			wf.Options = make([]*domain.Option, len(f.Options))
			for i, o := range f.Options {
				wf.Options[i] = &domain.Option{Label: o.Label, Value: o.Value}
			}
		}
		out.Fields = append(out.Fields, wf)
	}
	return out, nil
}

// BeginSave transitions to Saving. Only a Ready session with no pending
// parse errors may start a save.
func (m *Model) BeginSave() error {
	if m.state != StateReady {
		return domain.Validationf("cannot save in state %s", m.state)
	}
	if len(m.optionErrs) > 0 {
		return domain.Validationf("unresolved option parse errors")
	}
	m.state = StateSaving
	m.lastErr = nil
	return nil
}

// SaveSucceeded finishes the session; the caller navigates away.
func (m *Model) SaveSucceeded() {
	if m.state == StateSaving {
		m.state = StateSaved
	}
}

// SaveFailed returns the session to Ready with the error surfaced, never
// silently discarded. The definition keeps its last-known-good state.
func (m *Model) SaveFailed(err error) {
	if m.state == StateSaving {
		m.state = StateReady
		m.lastErr = err
	}
}
