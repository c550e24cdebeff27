package internal

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	dateLayout       = "2006-01-02"
)

// listParams holds common query parameters for list endpoints
type listParams struct {
	limit  int
	offset int
	q      string
	sort   string
}

// parseListParams parses limit, offset, q, and sort from the request
// Defaults: limit=50 (max 200), offset=0
func parseListParams(r *http.Request) listParams {
	values := r.URL.Query()

	limit := defaultListLimit
	if s := strings.TrimSpace(values.Get("limit")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = min(v, maxListLimit)
		}
	}

	offset := 0
	if s := strings.TrimSpace(values.Get("offset")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	return listParams{
		limit:  limit,
		offset: offset,
		q:      strings.TrimSpace(values.Get("q")),
		sort:   strings.TrimSpace(values.Get("sort")),
	}
}

// listMeta is the paging block of a list response
type listMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type listResponse struct {
	Data any      `json:"data"`
	Meta listMeta `json:"meta"`
}

// sendListResponse writes a page of results with its paging metadata
func sendListResponse(w http.ResponseWriter, data any, total int, params listParams) {
	writeJSON(w, http.StatusOK, listResponse{
		Data: data,
		Meta: listMeta{Total: total, Limit: params.limit, Offset: params.offset},
	})
}

// parseDate reads a YYYY-MM-DD query value in loc. ok is false when the key is absent.
func parseDate(values map[string][]string, key string, loc *time.Location) (t time.Time, ok bool, err error) {
	raw := ""
	if v := values[key]; len(v) > 0 {
		raw = strings.TrimSpace(v[0])
	}
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err = time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, true, err
	}
	return t, true, nil
}
