package domain

import "encoding/json"

// ChangePayload is the JSON snapshot of an entity on one side of a Change.
// The zero value means no snapshot, as on the Before side of a create.
type ChangePayload struct {
	raw json.RawMessage
}

// NewChangePayload copies raw into a payload.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	if len(raw) == 0 {
		return ChangePayload{}
	}
	return ChangePayload{raw: append(json.RawMessage(nil), raw...)}
}

// NewChangePayloadFromValue snapshots v as JSON.
func NewChangePayloadFromValue[T any](v T) (ChangePayload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{raw: raw}, nil
}

// IsEmpty reports whether there is no snapshot.
func (p ChangePayload) IsEmpty() bool { return len(p.raw) == 0 }

// Raw returns a copy of the snapshot bytes, or nil.
func (p ChangePayload) Raw() json.RawMessage {
	if len(p.raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), p.raw...)
}

// DecodeChangePayload decodes a snapshot into T. It reports false when the
// payload is empty or does not decode as T.
func DecodeChangePayload[T any](p ChangePayload) (T, bool) {
	var out T
	if p.IsEmpty() {
		return out, false
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, false
	}
	return out, true
}
