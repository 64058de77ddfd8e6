package filters

import (
	"bytes"
	"compress/lzw"
	"fmt"
	"io"
)

// LZWDecode decompresses LZW-compressed data and applies the same
// predictor support FlateDecode offers. PDF's LZW variant matches the
// classic TIFF/GIF MSB-first, 8-bit-literal encoding that compress/lzw
// already implements; the EarlyChange decode parameter (default 1) controls
// whether the code width increases one code early, which is what
// compress/lzw's MSB order assumes. EarlyChange=0 streams are rare in
// practice and are rejected rather than silently misdecoded.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	earlyChange := getIntParam(params, "EarlyChange", 1)
	if earlyChange != 1 {
		return nil, fmt.Errorf("LZWDecode: EarlyChange=%d not supported", earlyChange)
	}

	reader := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("lzw decompression failed: %w", err)
	}
	decoded := buf.Bytes()

	if params != nil {
		if predictorObj, ok := params["Predictor"]; ok && predictorObj != nil {
			predictor := getIntParam(params, "Predictor", 1)
			if predictor != 1 {
				var err error
				decoded, err = applyPredictor(decoded, predictor, params)
				if err != nil {
					return nil, fmt.Errorf("predictor failed: %w", err)
				}
			}
		}
	}

	return decoded, nil
}
