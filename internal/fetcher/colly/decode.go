package collyfetcher

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var xmlEncodingAttr = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding=)["'][^"']*["']`)

// decodeBody converts body to UTF-8. Colly already converts responses whose
// Content-Type names a charset, so only undeclared bodies are decoded here,
// using label when set and sniffing otherwise.
func decodeBody(body []byte, contentType, label string) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}
	if !strings.Contains(strings.ToLower(contentType), "charset=") {
		enc, err := pickEncoding(body, contentType, label)
		if err != nil {
			return nil, err
		}
		if enc != unicode.UTF8 && enc != encoding.Nop {
			decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
			if err != nil {
				return nil, fmt.Errorf("decode body: %w", err)
			}
			body = decoded
		}
	}
	// The XML prolog may still name the wire charset; the parser must not
	// decode a second time.
	return xmlEncodingAttr.ReplaceAll(body, []byte(`${1}"UTF-8"`)), nil
}

func pickEncoding(body []byte, contentType, label string) (encoding.Encoding, error) {
	if label != "" {
		enc, _ := charset.Lookup(label)
		if enc == nil {
			return nil, fmt.Errorf("unknown charset %q", label)
		}
		return enc, nil
	}
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	return enc, nil
}
