package importer

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"

	"github.com/JonMunkholm/staffgrid/internal/core"
)

// Encoding names reported on a Report.
const (
	EncodingUTF8          = "utf-8"
	EncodingUTF8BOM       = "utf-8-bom"
	EncodingUTF16LE       = "utf-16le"
	EncodingUTF16BE       = "utf-16be"
	EncodingEUCKR         = "euc-kr"
	EncodingUTF8Sanitized = "utf-8-sanitized"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectAndDecode strips any byte order mark and returns data as NFC
// normalized UTF-8 along with the detected encoding name.
//
// Files that are not valid UTF-8 are tried as EUC-KR (what Excel writes for
// Korean locales). If that also fails, invalid bytes are replaced with '?'.
func DetectAndDecode(data []byte) ([]byte, string, error) {
	decoded, name, err := decode(data)
	if err != nil {
		return nil, "", err
	}
	return norm.NFC.Bytes(decoded), name, nil
}

func decode(data []byte) ([]byte, string, error) {
	switch {
	case len(data) == 0:
		return data, EncodingUTF8, nil
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], EncodingUTF8BOM, nil
	case bytes.HasPrefix(data, bomUTF16LE):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", encodingError(EncodingUTF16LE, err)
		}
		return out, EncodingUTF16LE, nil
	case bytes.HasPrefix(data, bomUTF16BE):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", encodingError(EncodingUTF16BE, err)
		}
		return out, EncodingUTF16BE, nil
	case utf8.Valid(data):
		return data, EncodingUTF8, nil
	}

	// The x/text decoder substitutes U+FFFD for bytes it cannot map rather
	// than failing, so a clean decode has none.
	if out, err := korean.EUCKR.NewDecoder().Bytes(data); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return out, EncodingEUCKR, nil
	}

	out, err := io.ReadAll(core.NewUTF8Sanitizer(bytes.NewReader(data)))
	if err != nil {
		return nil, "", encodingError(EncodingUTF8Sanitized, err)
	}
	return out, EncodingUTF8Sanitized, nil
}

func encodingError(name string, err error) error {
	return fmt.Errorf("encoding error: %s: %w", name, err)
}
