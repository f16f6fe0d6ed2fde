package configutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/titanous/json5"
)

// Duration is a time.Duration that is written in config files as a Go
// duration string ("3s", "72h") or as a number of milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	err := json5.Unmarshal(data, &raw)
	if err != nil {
		return err
	}
	switch value := raw.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Millisecond)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
