package util

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// autoOrder is tried in sequence when the device charset is unknown.
var autoOrder = []encoding.Encoding{
	simplifiedchinese.GB18030,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// LookupEncoding maps a configured charset name to a decoder. Empty and
// "auto" return nil, meaning detection by autoOrder.
func LookupEncoding(name string) encoding.Encoding {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gb18030":
		return simplifiedchinese.GB18030
	case "gbk":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1
	}
	return nil
}

// DecodeDeviceOutput returns b as UTF-8. Valid UTF-8 is passed through;
// otherwise the preferred charset is tried first, then autoOrder. If every
// decoder fails the raw bytes are returned.
func DecodeDeviceOutput(b []byte, preferred string) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	if enc := LookupEncoding(preferred); enc != nil {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	for _, enc := range autoOrder {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

// EnsureUTF8 is DecodeDeviceOutput with auto detection.
func EnsureUTF8(s string) string {
	return DecodeDeviceOutput([]byte(s), "")
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if utf8.Valid(decoded) {
		return string(decoded), true
	}
	return "", false
}
