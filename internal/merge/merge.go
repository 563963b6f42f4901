// Package merge reconciles a stored profile document with a client-submitted
// partial document. The merge is non-destructive: a sparse or stale client
// payload can add and overwrite fields it actually carries, but can never
// erase state it says nothing about.
package merge

import "strings"

// Sanitize returns a copy of the client document with "no opinion" entries
// removed: nulls, strings that trim to empty, and nested objects that become
// empty after recursive stripping. The input is never modified.
func Sanitize(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			out[key] = v
		case map[string]any:
			nested := Sanitize(v)
			if len(nested) == 0 {
				continue
			}
			out[key] = nested
		default:
			out[key] = value
		}
	}
	return out
}

// Merge deep-merges a sanitized client document into the stored document and
// returns a new document. Where both sides hold an object at the same key the
// merge recurses; otherwise the client's leaf value replaces the stored one.
// Keys present only in the stored document are preserved untouched.
func Merge(stored, client map[string]any) map[string]any {
	out := make(map[string]any, len(stored)+len(client))
	for key, value := range stored {
		out[key] = value
	}
	for key, value := range client {
		clientDoc, clientIsDoc := value.(map[string]any)
		storedDoc, storedIsDoc := out[key].(map[string]any)
		if clientIsDoc && storedIsDoc {
			out[key] = Merge(storedDoc, clientDoc)
			continue
		}
		out[key] = value
	}
	return out
}
