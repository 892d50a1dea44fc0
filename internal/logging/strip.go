package logging

const esc = 0x1b

// StripANSI removes terminal escape sequences from data. CSI sequences run
// to a final byte, OSC sequences to BEL or ESC \, and the rest are ESC plus
// optional intermediates and one final byte. A sequence cut off at the end
// of data is dropped.
func StripANSI(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if data[i] != esc {
			out = append(out, data[i])
			i++
			continue
		}
		i = skipEscape(data, i+1)
	}
	return out
}

// skipEscape returns the index just past the sequence whose introducer
// follows the ESC byte at i-1.
func skipEscape(data []byte, i int) int {
	if i >= len(data) {
		return i
	}
	switch data[i] {
	case '[':
		for i++; i < len(data); i++ {
			if data[i] >= 0x40 && data[i] <= 0x7e {
				return i + 1
			}
		}
	case ']':
		for i++; i < len(data); i++ {
			if data[i] == 0x07 {
				return i + 1
			}
			if data[i] == esc && i+1 < len(data) && data[i+1] == '\\' {
				return i + 2
			}
		}
	default:
		// Intermediate bytes, then one final byte.
		for i < len(data) && data[i] >= 0x20 && data[i] <= 0x2f {
			i++
		}
		return min(i+1, len(data))
	}
	return len(data)
}
