package spec

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestLoadOtterSpec(t *testing.T) {
	sp, err := Load(filepath.Join("testdata", "otter.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(sp.Template) != 2 {
		t.Fatalf("expected 2 template slots, got %d", len(sp.Template))
	}
	if sp.Template[0].Kind != KindBlock || sp.Template[0].BlockType != "HEADER" {
		t.Errorf("slot 0 = %+v, want HEADER block", sp.Template[0])
	}
	if sp.Template[1].Kind != KindConditional || sp.Template[1].DependsOn != "message type" {
		t.Errorf("slot 1 = %+v, want conditional on message type", sp.Template[1])
	}

	if !sp.HasBlock("HEADER") {
		t.Error("expected HEADER block in catalog")
	}
	if !sp.HasBlock("otter_desc") {
		t.Error("expected normalized lookup of OTTER_DESC to succeed")
	}

	hello, ok := sp.BlockDescriptors("hello")
	if !ok {
		t.Fatal("BlockDescriptors(hello) failed")
	}
	if len(hello) != 2 {
		t.Fatalf("expected 2 entries in HELLO, got %d", len(hello))
	}
	if hello[0].Kind != KindBlock || hello[0].BlockType != "OTTER_DESC" {
		t.Errorf("HELLO[0] = %+v, want nested OTTER_DESC", hello[0])
	}
	if hello[1].Kind != KindField || hello[1].Size != 1 {
		t.Errorf("HELLO[1] = %+v, want 1-byte field", hello[1])
	}

	header, _ := sp.BlockDescriptors("HEADER")
	if !header[0].IsLength {
		t.Error("header length should carry is_length")
	}
	if !bytes.Equal(header[1].Default, []byte{0x01}) {
		t.Errorf("message type default = % X, want 01", header[1].Default)
	}
}

func TestLoadYAMLMatchesJSON(t *testing.T) {
	jsonSpec, err := Load(filepath.Join("testdata", "otter.json"))
	if err != nil {
		t.Fatalf("Load json failed: %v", err)
	}
	yamlSpec, err := Load(filepath.Join("testdata", "otter.yaml"))
	if err != nil {
		t.Fatalf("Load yaml failed: %v", err)
	}
	if diff := cmp.Diff(jsonSpec.Template, yamlSpec.Template); diff != "" {
		t.Errorf("template mismatch (-json +yaml):\n%s", diff)
	}
	if diff := cmp.Diff(jsonSpec.Blocks, yamlSpec.Blocks); diff != "" {
		t.Errorf("blocks mismatch (-json +yaml):\n%s", diff)
	}
	if diff := cmp.Diff(jsonSpec.Codes, yamlSpec.Codes); diff != "" {
		t.Errorf("codes mismatch (-json +yaml):\n%s", diff)
	}
}

func TestLoadCaches(t *testing.T) {
	path := filepath.Join("testdata", "otter.json")
	first, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if first != second {
		t.Error("expected cached Specification on second load")
	}

	yamlTwin, err := Load(filepath.Join("testdata", "otter.yaml"))
	if err != nil {
		t.Fatalf("Load yaml failed: %v", err)
	}
	if yamlTwin == first {
		t.Error("different paths must not share a cache entry")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if fe.Path == "" {
		t.Error("expected error to carry the file path")
	}
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"not a mapping",
			`- just\n- a list`,
			"not a mapping",
		},
		{
			"missing blocks section",
			`{frame: [], codes: {}}`,
			`missing section "blocks"`,
		},
		{
			"missing frame section",
			`{blocks: {}, codes: {}}`,
			`missing section "frame"`,
		},
		{
			"entry missing type",
			`{frame: [], blocks: {B: [{name: x, size: 1}]}, codes: {}}`,
			"missing type",
		},
		{
			"field missing size",
			`{frame: [], blocks: {B: [{type: field, name: x}]}, codes: {}}`,
			"size must be positive",
		},
		{
			"field negative size",
			`{frame: [], blocks: {B: [{type: field, name: x, size: -2}]}, codes: {}}`,
			"size must be positive",
		},
		{
			"field missing name",
			`{frame: [], blocks: {B: [{type: field, size: 1}]}, codes: {}}`,
			"missing name",
		},
		{
			"bad default hex",
			`{frame: [], blocks: {B: [{type: field, name: x, size: 1, default: zz}]}, codes: {}}`,
			"invalid hex",
		},
		{
			"unknown block reference",
			`{frame: [{name: body, type: MISSING}], blocks: {}, codes: {}}`,
			`unknown block type "MISSING"`,
		},
		{
			"conditional without code table",
			`{frame: [{name: body, type: "depends:message type"}], blocks: {}, codes: {}}`,
			"has no code table",
		},
		{
			"empty determinant",
			`{frame: [{name: body, type: "depends: "}], blocks: {}, codes: {}}`,
			"empty determinant",
		},
		{
			"self reference",
			`{frame: [], blocks: {A: [{name: inner, type: A}]}, codes: {}}`,
			"circular reference",
		},
		{
			"mutual reference",
			`{frame: [], blocks: {A: [{name: b, type: B}], B: [{name: a, type: A}]}, codes: {}}`,
			"circular reference",
		},
		{
			"code table key collision",
			`{frame: [], blocks: {}, codes: {t: {"01": X, "0x01": Y}}}`,
			"maps to both",
		},
		{
			"block name collision after normalization",
			`{frame: [], blocks: {"MY BLOCK": [{type: field, name: x, size: 1}], my_block: [{type: field, name: y, size: 1}]}, codes: {}}`,
			"collide after normalization",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseAcceptsEmptySections(t *testing.T) {
	sp, err := Parse([]byte(`{frame: [], blocks: {B: [{type: field, name: x, size: 1}]}, codes: {}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(sp.Template) != 0 {
		t.Errorf("expected empty template, got %d slots", len(sp.Template))
	}
	if len(sp.Codes) != 0 {
		t.Errorf("expected no code tables, got %d", len(sp.Codes))
	}
	if !sp.HasBlock("B") {
		t.Error("expected block B in catalog")
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"header length", "header_length"},
		{"Header Length", "header_length"},
		{"header_length", "header_length"},
		{"save water", "save_water"},
		{"!drink..beer!", "_drink_beer_"},
		{"TOTAL_LENGTH", "total_length"},
		{"cEMI", "cemi"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveConditional(t *testing.T) {
	sp, err := Load(filepath.Join("testdata", "otter.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	name, err := sp.ResolveConditional("message type", []byte{0x01})
	if err != nil {
		t.Fatalf("ResolveConditional failed: %v", err)
	}
	if name != "HELLO" {
		t.Errorf("resolved %q, want HELLO", name)
	}

	// Normalized field spelling resolves the same table.
	if _, err := sp.ResolveConditional("Message Type", []byte{0x01}); err != nil {
		t.Errorf("normalized field lookup failed: %v", err)
	}

	_, err = sp.ResolveConditional("message type", []byte{0xFF})
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if !bytes.Equal(re.Value, []byte{0xFF}) {
		t.Errorf("error value = % X, want FF", re.Value)
	}

	// Leading zeros are significant: a two-byte 0x0001 is not the
	// one-byte key "01".
	if _, err := sp.ResolveConditional("message type", []byte{0x00, 0x01}); err == nil {
		t.Error("expected two-byte value to miss the one-byte table entry")
	}

	if _, err := sp.ResolveConditional("no such field", []byte{0x01}); !errors.As(err, &re) {
		t.Errorf("expected ResolutionError for missing table, got %v", err)
	}
}

func TestCodeValue(t *testing.T) {
	sp, err := Load(filepath.Join("testdata", "otter.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	v, ok := sp.CodeValue("message type", "hello")
	if !ok {
		t.Fatal("CodeValue(message type, hello) failed")
	}
	if !bytes.Equal(v, []byte{0x01}) {
		t.Errorf("CodeValue = % X, want 01", v)
	}
	if _, ok := sp.CodeValue("message type", "GOODBYE"); ok {
		t.Error("expected unknown name to return false")
	}
}

func TestDeterminantsFor(t *testing.T) {
	sp, err := Load(filepath.Join("testdata", "otter.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	det := sp.DeterminantsFor("HELLO")
	if len(det) != 1 {
		t.Fatalf("expected 1 determinant, got %d", len(det))
	}
	if !bytes.Equal(det["message_type"], []byte{0x01}) {
		t.Errorf("determinant = % X, want 01", det["message_type"])
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	sp, err := Load(filepath.Join("testdata", "otter.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	out, err := yaml.Marshal(sp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	back, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse of marshaled document failed: %v", err)
	}
	if diff := cmp.Diff(sp.Template, back.Template); diff != "" {
		t.Errorf("template changed across round trip:\n%s", diff)
	}
	if diff := cmp.Diff(sp.Blocks, back.Blocks); diff != "" {
		t.Errorf("blocks changed across round trip:\n%s", diff)
	}
}

func TestLoadSectionsCustomNames(t *testing.T) {
	doc := []byte(`
layout:
  - {name: body, type: BODY}
parts:
  BODY:
    - {type: field, name: data, size: 4}
tables: {}
`)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatal(err)
	}
	custom := Sections{Template: "layout", Blocks: "parts", Codes: "tables"}
	sp, err := LoadSections(path, custom)
	if err != nil {
		t.Fatalf("LoadSections failed: %v", err)
	}
	if len(sp.Template) != 1 || !sp.HasBlock("BODY") {
		t.Errorf("custom sections not honored: %+v", sp)
	}
	again, err := LoadSections(path, custom)
	if err != nil {
		t.Fatalf("second LoadSections failed: %v", err)
	}
	if again != sp {
		t.Error("expected cached Specification for repeated section names")
	}
	if _, err := Load(path); err == nil {
		t.Error("default section names should not match this document")
	}
}
