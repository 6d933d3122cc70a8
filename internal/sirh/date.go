package sirh

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the textual date layout used by the registry (dd/mm/yyyy).
const DateLayout = "02/01/2006"

// Date decodes registry dates. Empty strings and null decode to the zero value.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sirh date: %w", err)
	}
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return fmt.Errorf("sirh date %q: %w", raw, err)
	}
	d.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

// Ptr returns nil for the zero date.
func (d Date) Ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
