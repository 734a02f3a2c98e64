package inspect

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	werrors "github.com/vango-dev/waypoint/internal/errors"
	"github.com/vango-dev/waypoint/pkg/matchcache"
	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/search"
)

// navigateRequest is the body of POST /navigate and POST /preload.
type navigateRequest struct {
	To            string            `json:"to"`
	From          string            `json:"from"`
	Href          string            `json:"href"`
	Params        map[string]string `json:"params"`
	Search        search.Values     `json:"search"`
	KeepSearch    bool              `json:"keepSearch"`
	Hash          string            `json:"hash"`
	State         map[string]any    `json:"state"`
	Replace       bool              `json:"replace"`
	IgnoreBlocker bool              `json:"ignoreBlocker"`
}

func (req navigateRequest) options() navigation.NavigateOptions {
	return navigation.NavigateOptions{
		To:            req.To,
		From:          req.From,
		Href:          req.Href,
		Params:        req.Params,
		Search:        req.Search,
		KeepSearch:    req.KeepSearch,
		Hash:          req.Hash,
		State:         req.State,
		Replace:       req.Replace,
		IgnoreBlocker: req.IgnoreBlocker,
	}
}

type invalidateRequest struct {
	// RouteID limits the invalidation to one route. Empty means all.
	RouteID string `json:"routeId"`
}

// MatchesView is the body of GET /match and POST /preload.
type MatchesView struct {
	Matches []MatchView `json:"matches"`
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewRouteViews(s.router.Tree()))
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	href := r.URL.Query().Get("href")
	if href == "" {
		href = r.URL.Query().Get("path")
	}
	if href == "" {
		s.writeError(w, werrors.New(werrors.CodeInvalidArgs).WithDetail("href is required"))
		return
	}
	matches, err := s.router.MatchRoutes(r.Context(), href)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MatchesView{Matches: NewMatchViews(matches)})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewStateView(s.router.State()))
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewCacheView(s.router.Cache()))
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.router.Navigate(r.Context(), req.options()); err != nil {
		s.writeError(w, err)
		return
	}
	st := s.router.State()
	status := st.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	s.writeJSON(w, status, NewStateView(st))
}

func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !s.decode(w, r, &req) {
		return
	}
	matches, err := s.router.Preload(r.Context(), req.options())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MatchesView{Matches: NewMatchViews(matches)})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	var filter func(matchcache.Entry) bool
	if req.RouteID != "" {
		if s.router.Tree().Node(req.RouteID) == nil {
			s.writeError(w, werrors.New(werrors.CodeUnknownRoute).WithDetail(req.RouteID))
			return
		}
		filter = func(e matchcache.Entry) bool { return e.RouteID == req.RouteID }
	}
	if err := s.router.Invalidate(r.Context(), filter); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewStateView(s.router.State()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h := s.router.History()
	switch op := chi.URLParam(r, "op"); op {
	case "back":
		h.Back()
	case "forward":
		h.Forward()
	default:
		s.writeError(w, werrors.New(werrors.CodeInvalidArgs).WithDetail("unknown history operation "+op))
		return
	}
	s.writeJSON(w, http.StatusAccepted, NewStateView(s.router.State()))
}

// =============================================================================
// Encoding
// =============================================================================

// decode reads a JSON body into v. An empty body leaves v unchanged.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, werrors.New(werrors.CodeInvalidArgs).WithDetail(err.Error()))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	e := werrors.Classify(err, werrors.CodeLoaderFailed)
	status := statusFor(e.Code)
	if status >= 500 {
		s.logger.Error("request failed", "code", e.Code, "error", err)
	}
	v := ErrorView{Code: e.Code, Message: e.Message, Detail: e.Detail}
	if e.Wrapped != nil {
		v.Detail = e.Wrapped.Error()
	}
	s.writeJSON(w, status, v)
}

func statusFor(code string) int {
	switch code {
	case werrors.CodeInvalidArgs, werrors.CodeInvalidPath, werrors.CodePathEscapesRoot,
		werrors.CodeMissingParam, werrors.CodeInvalidSearch, werrors.CodeInvalidParams:
		return http.StatusBadRequest
	case werrors.CodeNotFound, werrors.CodeUnknownRoute:
		return http.StatusNotFound
	case werrors.CodeCancelled, werrors.CodeBlocked:
		return http.StatusConflict
	case werrors.CodePreloadDropped:
		return http.StatusTooManyRequests
	case werrors.CodeRouterClosed:
		return http.StatusServiceUnavailable
	case werrors.CodeRedirectLoop:
		return http.StatusLoopDetected
	}
	return http.StatusInternalServerError
}
