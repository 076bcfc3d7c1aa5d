package handler

import (
	"net/http"
	"strconv"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type Page struct {
	Limit  int
	Offset int
}

// parsePage reads limit and offset from the query. Missing values take the
// defaults and a limit above MaxPageSize is clamped; anything else that is not
// a usable number is INVALID_INPUT.
func parsePage(r *http.Request) (Page, error) {
	q := r.URL.Query()
	p := Page{Limit: DefaultPageSize}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, apperrors.InvalidInput("limit", "must be a positive integer")
		}
		p.Limit = min(n, MaxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, apperrors.InvalidInput("offset", "must be a non-negative integer")
		}
		p.Offset = n
	}
	return p, nil
}
