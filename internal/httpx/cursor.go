package httpx

import (
	"encoding/base64"
	"net/http"
	"strconv"
)

// CursorData represents the data encoded in a cursor
type CursorData struct {
	AfterID string `json:"after_id,omitempty"`
}

// EncodeCursor encodes cursor data to a base64 string
func EncodeCursor(data CursorData) string {
	if data.AfterID == "" {
		return ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeCursor decodes a base64 cursor string to CursorData
func DecodeCursor(cursor string) (CursorData, error) {
	if cursor == "" {
		return CursorData{}, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return CursorData{}, err
	}
	var data CursorData
	err = json.Unmarshal(decoded, &data)
	return data, err
}

// PageLimit reads ?limit, defaulting to def and capping at maxN.
func PageLimit(r *http.Request, def, maxN int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxN)
}
