package transport

import "encoding/json"

// cloneData copies a payload through its JSON form so nothing is shared
// across the boundary. Values JSON cannot represent pass through unchanged.
func cloneData(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
