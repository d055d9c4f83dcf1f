package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Request body limits.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	defaultPageSize    = 20
)

var validate = validator.New()

// searchRequest is the JSON request body for POST /api/v1/search.
type searchRequest struct {
	Query        string   `json:"query" validate:"required,min=2,max=1000"`
	Sources      []string `json:"sources,omitempty" validate:"max=10"`
	YearFrom     *int     `json:"yearFrom,omitempty" validate:"omitempty,gte=1000,lte=2100"`
	YearTo       *int     `json:"yearTo,omitempty" validate:"omitempty,gte=1000,lte=2100"`
	MinCitations int      `json:"minCitations,omitempty" validate:"gte=0"`
	Page         int      `json:"page,omitempty" validate:"gte=0"`
	PageSize     int      `json:"pageSize,omitempty" validate:"gte=0,lte=200"`
}

// searchHandler handles POST /api/v1/search. It runs the full pipeline (or
// serves the cached result) and returns one page plus pipeline metadata.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req searchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0]
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid field %q: failed %q constraint", jsonFieldName(field.Field()), field.Tag()))
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	query := domain.Query{
		Text:         req.Query,
		YearFrom:     req.YearFrom,
		YearTo:       req.YearTo,
		MinCitations: req.MinCitations,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if query.Page == 0 {
		query.Page = 1
	}
	if query.PageSize == 0 {
		query.PageSize = defaultPageSize
	}
	for _, src := range req.Sources {
		query.Sources = append(query.Sources, domain.SourceType(src))
	}

	ctx := r.Context()
	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}

	resp, err := s.search.Search(ctx, query)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// writeSearchError maps pipeline errors onto HTTP status codes.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrAllProvidersFailed):
		s.writeError(w, http.StatusBadGateway, "all providers failed")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "search timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; the status code is never seen.
		s.writeError(w, 499, "request cancelled")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("search failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// sourceInfo describes one provider in the GET /api/v1/sources response.
type sourceInfo struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// listSourcesHandler handles GET /api/v1/sources.
func (s *Server) listSourcesHandler(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	infos := make([]sourceInfo, 0, len(all))
	for _, src := range all {
		infos = append(infos, sourceInfo{
			Type:    string(src.SourceType()),
			Name:    src.Name(),
			Enabled: src.Enabled(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sources": infos})
}

// jsonFieldName converts a Go struct field name to its JSON form.
func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
