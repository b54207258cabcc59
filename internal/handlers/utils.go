package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/VallejoLeonardo/alumnosb/internal/auth"
	"github.com/VallejoLeonardo/alumnosb/types"
)

type contextKey string

const contextClaimsKey contextKey = "claims"

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

func claimsFromContext(ctx context.Context) (*auth.Claims, error) {
	claims, ok := ctx.Value(contextClaimsKey).(*auth.Claims)
	if !ok || claims == nil || strings.TrimSpace(claims.StudentID) == "" {
		return nil, errors.New("missing claims")
	}
	return claims, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// ErrorResponse is the error payload. Status mirrors the HTTP code so the
// body carries its own discriminator.
type ErrorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Status: status, Error: message})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func parsePagination(r *http.Request) (page, pageSize, offset int, err error) {
	page = defaultPage
	pageSize = defaultPageSize

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawSize := strings.TrimSpace(r.URL.Query().Get("pageSize"))
	if rawSize == "" {
		rawSize = strings.TrimSpace(r.URL.Query().Get("limit"))
	}
	if rawSize != "" {
		pageSize, err = strconv.Atoi(rawSize)
		if err != nil || pageSize < 1 {
			return 0, 0, 0, errors.New("invalid page size")
		}
	}

	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset = (page - 1) * pageSize
	return page, pageSize, offset, nil
}

// buildPagination derives the pagination block from the 1-based page number,
// the page size, and the total row count.
func buildPagination(page, pageSize, total int) types.Pagination {
	totalPages := (total + pageSize - 1) / pageSize
	return types.Pagination{
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalMessages: total,
		HasNextPage:   page < totalPages,
		HasPrevPage:   page > 1,
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
