package filters

import "fmt"

// RunLengthDecode decodes PDF's RunLengthDecode filter (ISO 32000-1 §7.4.5):
// a length byte followed either by length+1 literal bytes (length < 128)
// or a single byte repeated 257-length times (length > 128); length 128 is
// the EOD marker. This is a small, fixed, self-contained byte-shuffle with
// no parameters — no third-party library offers anything over a direct
// implementation here.
func RunLengthDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		length := int(data[i])
		i++
		switch {
		case length == 128:
			return out, nil
		case length < 128:
			n := length + 1
			if i+n > len(data) {
				return nil, fmt.Errorf("RunLengthDecode: literal run exceeds input")
			}
			out = append(out, data[i:i+n]...)
			i += n
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("RunLengthDecode: repeat run missing byte")
			}
			b := data[i]
			i++
			n := 257 - length
			for k := 0; k < n; k++ {
				out = append(out, b)
			}
		}
	}
	return out, nil
}
