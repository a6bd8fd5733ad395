package secrets

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMalformedBase64 is returned when a field is not valid base64
	ErrMalformedBase64 = errors.New("malformed base64")
	// ErrInvalidUTF8 is returned when decoded bytes are not UTF-8 text
	ErrInvalidUTF8 = errors.New("decoded payload is not valid UTF-8")
	// ErrDecompress is returned when a gzip payload cannot be inflated
	ErrDecompress = errors.New("failed to decompress payload")
	// ErrInvalidDocument is returned when launch-template data is not JSON
	ErrInvalidDocument = errors.New("launch template data is not valid JSON")
)

// maxInflatedSize caps gunzipped user-data. EC2 limits raw user-data to 16 KB.
const maxInflatedSize = 4 << 20

// userDataPath is the launch-template member holding base64 user-data
const userDataPath = "UserData"

// cloudConfigHeader marks cloud-init YAML user-data
const cloudConfigHeader = "#cloud-config"

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// DecodeBase64 turns a raw user-data field into scannable text. Whitespace is
// ignored, unpadded input is accepted and gzip payloads are inflated.
func DecodeBase64(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if isASCIISpace(r) {
			return -1
		}
		return r
	}, raw)

	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		var rawErr error
		decoded, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
		if rawErr != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedBase64, err)
		}
	}

	if mimetype.Detect(decoded).Is("application/gzip") {
		decoded, err = gunzip(decoded)
		if err != nil {
			return "", err
		}
	}

	if !utf8.Valid(decoded) {
		return "", ErrInvalidUTF8
	}
	return string(decoded), nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if len(out) > maxInflatedSize {
		return nil, fmt.Errorf("%w: inflated payload exceeds %d bytes", ErrDecompress, maxInflatedSize)
	}
	return out, nil
}

// TemplateDocument is the scan input for one launch-template version
type TemplateDocument struct {
	// Document is the compacted JSON with its UserData member decoded in place
	Document string
	// UserData is the decoded user-data as plain text, empty when absent or undecodable
	UserData string

	keys map[string]struct{}
}

// IsKey reports whether s is the name of an object member anywhere in Document
func (d TemplateDocument) IsKey(s string) bool {
	_, ok := d.keys[s]
	return ok
}

// DecodeTemplateData decodes one launch-template version. A UserData member
// that does not decode is kept as-is in the document.
func DecodeTemplateData(data json.RawMessage) (TemplateDocument, error) {
	if !gjson.ValidBytes(data) {
		return TemplateDocument{}, ErrInvalidDocument
	}

	var out TemplateDocument
	doc := []byte(data)
	if ud := gjson.GetBytes(doc, userDataPath); ud.Type == gjson.String {
		if decoded, err := DecodeBase64(ud.String()); err == nil {
			rewritten, err := sjson.SetBytes(doc, userDataPath, decoded)
			if err != nil {
				return TemplateDocument{}, fmt.Errorf("failed to rewrite user data: %w", err)
			}
			doc = rewritten
			out.UserData = decoded
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return TemplateDocument{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	out.Document = buf.String()
	out.keys = make(map[string]struct{})
	collectKeys(gjson.ParseBytes(buf.Bytes()), out.keys)
	return out, nil
}

func collectKeys(v gjson.Result, keys map[string]struct{}) {
	if !v.IsObject() && !v.IsArray() {
		return
	}
	isObject := v.IsObject()
	v.ForEach(func(k, member gjson.Result) bool {
		if isObject {
			keys[k.String()] = struct{}{}
		}
		collectKeys(member, keys)
		return true
	})
}

// Reinterpret recovers a structured document from decoded user-data when there
// is one. JSON is tried first, then cloud-config YAML mappings.
func Reinterpret(text string) Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return TextValue(text)
	}

	if json.Valid([]byte(trimmed)) {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var doc interface{}
		if err := dec.Decode(&doc); err == nil {
			return StructuredValue(doc)
		}
	}

	if strings.HasPrefix(trimmed, cloudConfigHeader) {
		var doc map[string]interface{}
		if err := yaml.Unmarshal([]byte(text), &doc); err == nil && doc != nil {
			// Non-string keys survive yaml but not json
			if _, err := json.Marshal(doc); err == nil {
				return StructuredValue(doc)
			}
		}
	}

	return TextValue(text)
}
