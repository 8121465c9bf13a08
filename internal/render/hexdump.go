package render

import (
	"fmt"
	"strings"
)

const dumpWidth = 16

// HexDump renders data in the classic offset / hex / ASCII layout.
func HexDump(data []byte) string { return HexDumpStyled(data, active) }

// HexDumpStyled renders the dump with an explicit style set.
func HexDumpStyled(data []byte, s Styles) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += dumpWidth {
		sb.WriteString(s.Offset.Render(fmt.Sprintf("%04x:", i)))
		sb.WriteByte(' ')

		var hexPart strings.Builder
		for j := 0; j < dumpWidth; j++ {
			if i+j < len(data) {
				fmt.Fprintf(&hexPart, "%02x ", data[i+j])
			} else {
				hexPart.WriteString("   ")
			}
			if j == dumpWidth/2-1 {
				hexPart.WriteByte(' ')
			}
		}
		sb.WriteString(s.Hex.Render(hexPart.String()))

		var ascii strings.Builder
		for j := 0; j < dumpWidth && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 0x20 && b < 0x7f {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		sb.WriteString(s.ASCII.Render("|" + ascii.String() + "|"))
		sb.WriteByte('\n')
	}
	return sb.String()
}
