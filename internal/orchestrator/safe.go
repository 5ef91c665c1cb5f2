package orchestrator

import (
	"encoding/json"
	"fmt"
)

// SafeString renders any value for diagnostics. It never panics, even when a
// value's String or Error method does.
func SafeString(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<unprintable %T: %v>", v, r)
		}
	}()

	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return val
	case []byte:
		return string(val)
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}

	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%+v", v)
}
