package render

import (
	"strings"
	"testing"

	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/layers/knx"
	"github.com/jcalloway/framecraft/spec"
)

func TestTreeSearchRequest(t *testing.T) {
	sp, err := knx.Spec()
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	f, err := frame.New(sp, "SEARCH REQUEST", nil)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}

	out := TreeStyled(f, PlainStyles())
	for _, want := range []string{
		"SEARCH REQUEST  14 bytes",
		"HEADER",
		"BODY <SEARCH REQUEST>",
		"DISCOVERY ENDPOINT <HPAI>",
		"protocol version",
		"02 01  SEARCH REQUEST",
		"= 14",
		"0.0.0.0",
		"└─ ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}
}

func TestTreeHexColumnsAlign(t *testing.T) {
	sp, err := knx.Spec()
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	f, err := frame.New(sp, "SEARCH REQUEST", nil)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}

	// The four header fields share a stem, so their hex values must
	// start in the same byte column.
	out := TreeStyled(f, PlainStyles())
	col, matched := -1, 0
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "│") {
			continue
		}
		idx := hexStart(line)
		if idx < 0 {
			t.Fatalf("no hex value on field line %q", line)
		}
		matched++
		if col == -1 {
			col = idx
		} else if idx != col {
			t.Fatalf("hex column moved from %d to %d:\n%s", col, idx, out)
		}
	}
	if matched != 4 {
		t.Fatalf("matched %d header field lines, want 4:\n%s", matched, out)
	}
}

// hexStart finds the first two-space gap followed by a hex byte pair.
func hexStart(line string) int {
	for i := 0; i+3 < len(line); i++ {
		if line[i] == ' ' && line[i+1] == ' ' && isHexDigit(line[i+2]) && isHexDigit(line[i+3]) {
			return i + 2
		}
	}
	return -1
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

const bareDoc = `
frame:
  - header: HEADER
blocks:
  HEADER:
    - {type: field, name: header length, size: 1, is_length: true}
    - {type: field, name: payload, size: 4}
codes: {}
`

func TestTreeUntypedTitle(t *testing.T) {
	sp, err := spec.Parse([]byte(bareDoc))
	if err != nil {
		t.Fatalf("parse spec: %v", err)
	}
	f, err := frame.New(sp, "", nil)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	out := TreeStyled(f, PlainStyles())
	if !strings.HasPrefix(out, "FRAME  5 bytes") {
		t.Errorf("untyped frame title wrong:\n%s", out)
	}
	if !strings.Contains(out, "= 5") {
		t.Errorf("length note missing:\n%s", out)
	}
}

func TestPrintableText(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("boiler room\x00\x00\x00"), "boiler room"},
		{[]byte("ok"), ""},
		{[]byte{0x02, 0x01, 0x00, 0x0e}, ""},
		{[]byte("abc\x01def"), ""},
		{nil, ""},
	}
	for _, c := range cases {
		if got := printableText(c.in); got != c.want {
			t.Errorf("printableText(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSpacedHex(t *testing.T) {
	if got := SpacedHex([]byte{0x06, 0x10, 0x02}); got != "06 10 02" {
		t.Errorf("SpacedHex: got %q", got)
	}
	if got := SpacedHex(nil); got != "(empty)" {
		t.Errorf("SpacedHex(nil): got %q", got)
	}
}

func TestHexDump(t *testing.T) {
	data := make([]byte, 20)
	copy(data, "FRAMECRAFT")
	data[19] = 0xff

	out := HexDumpStyled(data, PlainStyles())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "0000: ") {
		t.Errorf("first offset wrong: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0010: ") {
		t.Errorf("second offset wrong: %q", lines[1])
	}
	if !strings.Contains(lines[0], "|FRAMECRAFT......|") {
		t.Errorf("ascii gutter wrong: %q", lines[0])
	}
	if !strings.Contains(lines[1], "ff") || !strings.HasSuffix(lines[1], "|....|") {
		t.Errorf("short row wrong: %q", lines[1])
	}
}

func TestTable(t *testing.T) {
	tbl := Table{
		Headers: []string{"NAME", "ADDR"},
		Rows: [][]string{
			{"gateway", "192.168.1.10:3671"},
			{"ip router long name", "10.0.0.2:3671"},
		},
	}
	out := tbl.RenderStyled(PlainStyles())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[0], "ADDR") {
		t.Errorf("header wrong: %q", lines[0])
	}
	if !strings.Contains(lines[1], "─") {
		t.Errorf("separator missing: %q", lines[1])
	}
	// ADDR column starts where the widest NAME cell ends plus spacing.
	wantCol := len("ip router long name") + 2
	if idx := strings.Index(lines[2], "192.168"); idx != wantCol {
		t.Errorf("ADDR column at %d, want %d:\n%s", idx, wantCol, out)
	}
}

func TestPlainToggle(t *testing.T) {
	Plain(true)
	defer Plain(false)
	if got := Active().Title.Render("x"); got != "x" {
		t.Errorf("plain render altered text: %q", got)
	}
}
