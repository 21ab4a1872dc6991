package stressor

import "github.com/sharedcode/radargun/encoding"

// marshalJSON/unmarshalJSON route log-value encoding through the shared
// Marshaler (spec.md §3: "serialize the value canonically... before sending
// to the backend"), rather than calling encoding/json directly, so a future
// swap of the wire format only touches this package's dependency, not every
// call site.
func marshalJSON(v any) ([]byte, error) {
	return encoding.DefaultMarshaler.Marshal(v)
}

func unmarshalJSON(data []byte, v any) error {
	return encoding.DefaultMarshaler.Unmarshal(data, v)
}
