package handler

import (
	"net/http"
	"strconv"

	"github.com/intranet/auth-server-go/internal/model"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

func ParsePagination(r *http.Request) model.ListUsersParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}

	if offset < 0 {
		offset = 0
	}

	return model.ListUsersParams{
		Limit:  limit,
		Offset: offset,
	}
}
