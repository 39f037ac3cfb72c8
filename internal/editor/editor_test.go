package editor

import (
	"errors"
	"testing"

	"survey-service/internal/domain"
)

func newReadyModel(t *testing.T) *Model {
	t.Helper()
	m := NewModel()
	if err := m.Create(true, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	return m
}

func TestCreateNew(t *testing.T) {
	m := newReadyModel(t)

	s := m.Survey()
	if s.Title != "" || s.Description != "" || len(s.Fields) != 0 {
		t.Fatalf("expected blank survey, got %+v", s)
	}
	if m.State() != StateReady {
		t.Fatalf("expected ready, got %s", m.State())
	}
}

func TestCreateExistingRequiresDefinition(t *testing.T) {
	m := NewModel()
	if err := m.Create(false, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	existing := &domain.Survey{ID: 7, Version: 2, Title: "T"}
	if err := m.Create(false, existing); err != nil {
		t.Fatalf("create existing: %v", err)
	}
	if m.Survey() != existing {
		t.Fatalf("expected model to adopt the fetched definition")
	}
}

func TestAddFieldAssignsDecreasingClientIDs(t *testing.T) {
	m := newReadyModel(t)

	f1, err := m.AddField()
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	f2, _ := m.AddField()

	if f1.ID != -1 || f2.ID != -2 {
		t.Fatalf("expected ids -1, -2, got %d, %d", f1.ID, f2.ID)
	}
	if f1.Type != domain.FieldText || f1.Required || f1.Options != nil {
		t.Fatalf("unexpected field defaults: %+v", f1)
	}
	if len(m.Survey().Fields) != 2 || m.Survey().Fields[1] != f2 {
		t.Fatalf("expected new field appended last")
	}
}

func TestFieldTypeTransition(t *testing.T) {
	m := newReadyModel(t)
	f, _ := m.AddField()

	if err := m.SetFieldType(f, domain.FieldSelect); err != nil {
		t.Fatalf("set select: %v", err)
	}
	if f.Options == nil || len(f.Options) != 0 {
		t.Fatalf("expected empty options slice, got %#v", f.Options)
	}

	if _, err := m.AddOption(f); err != nil {
		t.Fatalf("add option: %v", err)
	}

	// Leaving select discards the options; there is no undo.
	if err := m.SetFieldType(f, domain.FieldText); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if f.Options != nil {
		t.Fatalf("expected nil options, got %#v", f.Options)
	}

	if err := m.SetFieldType(f, "banana"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddOptionRequiresSelect(t *testing.T) {
	m := newReadyModel(t)
	f, _ := m.AddField()

	if _, err := m.AddOption(f); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOptionEditingTrimsUniformly(t *testing.T) {
	m := newReadyModel(t)
	f, _ := m.AddField()
	_ = m.SetFieldType(f, domain.FieldSelect)

	o, _ := m.AddOption(f)
	if err := m.SetOptionLabel(f, o, "  Alpha  "); err != nil {
		t.Fatalf("set label: %v", err)
	}
	if err := m.SetOptionValue(f, o, "\ta \n"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if o.Label != "Alpha" || o.Value != "a" {
		t.Fatalf("expected trimmed label/value, got %q/%q", o.Label, o.Value)
	}
}

func TestDuplicateOptionValuesRejected(t *testing.T) {
	m := newReadyModel(t)
	f, _ := m.AddField()
	_ = m.SetFieldType(f, domain.FieldSelect)

	o1, _ := m.AddOption(f)
	o2, _ := m.AddOption(f)
	if err := m.SetOptionValue(f, o1, "a"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if err := m.SetOptionValue(f, o2, " a "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestOptionReorderAndRemove(t *testing.T) {
	m := newReadyModel(t)
	f, _ := m.AddField()
	_ = m.SetFieldType(f, domain.FieldSelect)

	o1, _ := m.AddOption(f)
	o2, _ := m.AddOption(f)
	o3, _ := m.AddOption(f)

	if err := m.MoveOptionUp(f, o3); err != nil {
		t.Fatalf("move up: %v", err)
	}
	if f.Options[1] != o3 || f.Options[2] != o2 {
		t.Fatalf("unexpected order after move up")
	}

	if err := m.RemoveOption(f, o1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(f.Options) != 2 || f.Options[0] != o3 {
		t.Fatalf("unexpected options after remove")
	}

	if err := m.RemoveOption(f, o1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseOptionsFromText(t *testing.T) {
	m := newReadyModel(t)
	f, _ := m.AddField()
	_ = m.SetFieldType(f, domain.FieldSelect)

	if err := m.ParseOptionsFromText(f, `[{"label":" A ","value":" a "},{"label":"B","value":"b"}]`); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Options) != 2 || f.Options[0].Label != "A" || f.Options[0].Value != "a" {
		t.Fatalf("unexpected parsed options: %+v", f.Options[0])
	}

	// Malformed text leaves the last good options and records a typed error.
	err := m.ParseOptionsFromText(f, `[{"label":`)
	var perr *domain.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Raw != `[{"label":` {
		t.Fatalf("expected raw text preserved, got %q", perr.Raw)
	}
	if len(f.Options) != 2 {
		t.Fatalf("expected last good options untouched, got %d", len(f.Options))
	}
	if m.OptionsError(f) == nil {
		t.Fatalf("expected pending parse error")
	}
	if _, err := m.WireFormat(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected wire format to refuse pending parse error, got %v", err)
	}

	// Blank input clears options and the error state.
	if err := m.ParseOptionsFromText(f, "   "); err != nil {
		t.Fatalf("blank parse: %v", err)
	}
	if f.Options != nil || m.OptionsError(f) != nil {
		t.Fatalf("expected cleared options and error state")
	}
}

func TestWireFormatOmitsClientIDs(t *testing.T) {
	m := newReadyModel(t)
	_ = m.SetTitle("T")

	f, _ := m.AddField()
	_ = m.SetFieldLabel(f, "Q1")

	wire, err := m.WireFormat()
	if err != nil {
		t.Fatalf("wire format: %v", err)
	}
	if wire.ID != 0 || wire.Version != 0 {
		t.Fatalf("expected no survey id/version for new survey")
	}
	if wire.Fields[0].ID != 0 {
		t.Fatalf("expected client-local field id stripped, got %d", wire.Fields[0].ID)
	}
	if wire.Fields[0].Label != "Q1" {
		t.Fatalf("expected label preserved")
	}

	// The wire copy is detached from the live definition.
	wire.Fields[0].Label = "changed"
	if f.Label != "Q1" {
		t.Fatalf("wire format must not alias the model")
	}
}

func TestWireFormatKeepsServerIDs(t *testing.T) {
	existing := &domain.Survey{
		ID:      3,
		Version: 5,
		Fields: []*domain.Field{
			{ID: 10, Name: "q1", Type: domain.FieldText, Label: "Q1"},
		},
	}
	m := NewModel()
	if err := m.Create(false, existing); err != nil {
		t.Fatalf("create: %v", err)
	}

	wire, err := m.WireFormat()
	if err != nil {
		t.Fatalf("wire format: %v", err)
	}
	if wire.ID != 3 || wire.Version != 5 {
		t.Fatalf("expected id and version for update, got %d v%d", wire.ID, wire.Version)
	}
	if wire.Fields[0].ID != 10 || wire.Fields[0].Name != "q1" {
		t.Fatalf("expected server-assigned identifiers preserved")
	}
}

func TestSaveStateMachine(t *testing.T) {
	m := NewModel()

	if err := m.BeginSave(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected save refused before ready, got %v", err)
	}

	_ = m.Create(true, nil)
	if err := m.BeginSave(); err != nil {
		t.Fatalf("begin save: %v", err)
	}
	if m.State() != StateSaving {
		t.Fatalf("expected saving, got %s", m.State())
	}

	// Editing mid-save is refused.
	if _, err := m.AddField(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected edit refused while saving, got %v", err)
	}

	saveErr := errors.New("boom")
	m.SaveFailed(saveErr)
	if m.State() != StateReady {
		t.Fatalf("expected ready after failed save, got %s", m.State())
	}
	if !errors.Is(m.LastError(), saveErr) {
		t.Fatalf("expected surfaced error, got %v", m.LastError())
	}

	if err := m.BeginSave(); err != nil {
		t.Fatalf("begin save again: %v", err)
	}
	m.SaveSucceeded()
	if m.State() != StateSaved {
		t.Fatalf("expected saved, got %s", m.State())
	}
}
