package datasets

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// The metadata JSON documents wrap every field the same way:
//
//	{"qrcode": {"value": "ABC123"}, "height": {"value": 96.2}, ...}
//
// A record keeps only the wrapped values; everything else in the documents
// (timestamps, revision info) is ignored.
type record map[string]recordField

type recordField struct {
	Value any `json:"value"`
}

func loadRecord(path string) (record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read record %s", path)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse record %s", path)
	}
	return rec, nil
}

// stringValue returns field.value as a string.
func (r record) stringValue(field string) (string, error) {
	f, ok := r[field]
	if !ok {
		return "", errors.Errorf("record has no field %q", field)
	}
	s, ok := f.Value.(string)
	if !ok {
		return "", errors.Errorf("field %q is %T, want string", field, f.Value)
	}
	return s, nil
}

// numberValue returns field.value as a float32. JSON numbers decode as
// float64; anything else is a malformed record.
func (r record) numberValue(field string) (float32, error) {
	f, ok := r[field]
	if !ok {
		return 0, errors.Errorf("record has no field %q", field)
	}
	v, ok := f.Value.(float64)
	if !ok {
		return 0, errors.Errorf("field %q is %T, want number", field, f.Value)
	}
	return float32(v), nil
}
