package secrets

import "encoding/json"

// Value is decoded user-data as stored on a report entry: either plain text or
// a structured document recovered from it.
type Value struct {
	text       string
	structured interface{}
	isDoc      bool
}

// TextValue wraps decoded text that has no structured interpretation
func TextValue(text string) Value {
	return Value{text: text}
}

// StructuredValue wraps a document recovered from decoded text
func StructuredValue(doc interface{}) Value {
	return Value{structured: doc, isDoc: true}
}

// IsStructured reports whether the value holds a structured document
func (v Value) IsStructured() bool {
	return v.isDoc
}

// Text returns the plain text, or "" for a structured value
func (v Value) Text() string {
	return v.text
}

// MarshalJSON encodes text as a JSON string and documents as themselves
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsStructured() {
		return json.Marshal(v.structured)
	}
	return json.Marshal(v.Text())
}
