package alarm

import "encoding/json"

// notFounder is satisfied structurally by storage.ErrNotFound without this
// package importing internal/v1/storage.
type notFounder interface {
	NotFound() bool
}

func isNotFound(err error) bool {
	nf, ok := err.(notFounder)
	return ok && nf.NotFound()
}

func unmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
