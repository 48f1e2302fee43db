package response

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// ListResponse wraps a list so the top-level JSON value is always an object.
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

// WriteList writes items as {"items": [...], "count": n}.
func WriteList[T any](w http.ResponseWriter, status int, items []T) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, status, ListResponse{Items: items, Count: len(items)})
}
