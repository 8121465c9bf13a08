package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/fuzz"
	"github.com/jcalloway/framecraft/spec"
)

// ErrDeclined is returned when the operator answers no at the final
// confirm step.
var ErrDeclined = errors.New("craft declined")

// CraftResult carries what the wizard produced: the chosen type, the
// built frame with all entered values applied, and the raw inputs by
// field path.
type CraftResult struct {
	Type  string
	Frame *frame.Frame
	Edits map[string]string
}

// RunCraftForm walks an operator through building a frame: pick a
// type, fill in fields, confirm. Empty inputs keep spec defaults.
func RunCraftForm(sp *spec.Specification) (*CraftResult, error) {
	types := fuzz.FrameTypes(sp)
	if len(types) == 0 {
		return nil, errors.New("specification has no typed template slot to craft from")
	}

	selected := types[0]
	if err := buildTypeForm(types, &selected).Run(); err != nil {
		return nil, err
	}

	f, err := frame.New(sp, selected, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", selected, err)
	}

	refs := EditableFields(f)
	inputs := make([]string, len(refs))
	confirmed := true
	if err := buildFieldForm(refs, inputs, &confirmed).Run(); err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, ErrDeclined
	}

	edits := make(map[string]string)
	for i, ref := range refs {
		v, err := ParseValue(inputs[i])
		if err != nil || v == nil {
			continue
		}
		// Values keep the field's declared width; the inspector is the
		// place for width-changing edits.
		ref.Field.SetValue(codec.Normalize(v, ref.Field.Len()))
		edits[ref.Path] = strings.TrimSpace(inputs[i])
	}
	return &CraftResult{Type: selected, Frame: f, Edits: edits}, nil
}

func buildTypeForm(types []string, selected *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Frame type").
			Description("Frame layouts this specification can build.").
			Options(huh.NewOptions(types...)...).
			Value(selected),
	))
}

func buildFieldForm(refs []FieldRef, inputs []string, confirmed *bool) *huh.Form {
	fields := make([]huh.Field, 0, len(refs)+1)
	for i, ref := range refs {
		fields = append(fields, huh.NewInput().
			Title(ref.Path).
			Description(fieldHint(ref.Field)).
			Placeholder(codec.ToHex(ref.Field.Bytes())).
			Validate(validateValue).
			Value(&inputs[i]))
	}
	fields = append(fields, huh.NewConfirm().
		Title("Build frame?").
		Affirmative("Build").
		Negative("Discard").
		Value(confirmed))
	return huh.NewForm(huh.NewGroup(fields...))
}

func fieldHint(f *frame.Field) string {
	return fmt.Sprintf("%d bytes; hex, decimal, text or address, empty keeps %s",
		f.Len(), codec.ToHex(f.Bytes()))
}

func validateValue(s string) error {
	_, err := ParseValue(s)
	return err
}
