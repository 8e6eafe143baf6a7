package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/httputil"
	"github.com/intranet/auth-server-go/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads the request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return false
	}
	return true
}

func clientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{
		IP:        httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
