package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	pollservice "strata/contexts/governance/poll-service"
	"strata/contexts/governance/poll-service/domain/entities"
	pollerrors "strata/contexts/governance/poll-service/domain/errors"
	pollhttp "strata/contexts/governance/poll-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "strata/internal/platform/httpserver/docs"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	polls  pollservice.Module
}

func New(polls pollservice.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		polls:  polls,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /governance/polls", s.handleCreatePoll)
	s.mux.HandleFunc("GET /governance/polls", s.handleListPolls)
	s.mux.HandleFunc("GET /governance/polls/{poll_id}", s.handleGetPoll)
	s.mux.HandleFunc("POST /governance/polls/{poll_id}/publish", s.handlePublishPoll)
	s.mux.HandleFunc("POST /governance/polls/{poll_id}/open", s.handleForceOpen)
	s.mux.HandleFunc("POST /governance/polls/{poll_id}/close", s.handleForceClose)
	s.mux.HandleFunc("POST /governance/polls/{poll_id}/cancel", s.handleCancelPoll)
	s.mux.HandleFunc("POST /governance/polls/{poll_id}/ballots", s.handleCastBallot)
	s.mux.HandleFunc("GET /governance/polls/{poll_id}/tally", s.handleGetTally)
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	managerID, ok := s.requireManager(w, r)
	if !ok {
		return
	}

	var req pollhttp.CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.polls.Handler.CreatePollHandler(
		r.Context(),
		managerID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writePollDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	communityID := strings.TrimSpace(query.Get("community_id"))
	if communityID == "" {
		writePollError(w, http.StatusBadRequest, "missing_community", "community_id query parameter is required")
		return
	}

	resp, err := s.polls.Handler.ListPollsHandler(r.Context(), communityID, query.Get("status"))
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	resp, err := s.polls.Handler.GetPollHandler(r.Context(), r.PathValue("poll_id"))
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePublishPoll(w http.ResponseWriter, r *http.Request) {
	managerID, ok := s.requireManager(w, r)
	if !ok {
		return
	}
	resp, err := s.polls.Handler.PublishPollHandler(r.Context(), r.PathValue("poll_id"), managerID)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForceOpen(w http.ResponseWriter, r *http.Request) {
	managerID, ok := s.requireManager(w, r)
	if !ok {
		return
	}
	resp, err := s.polls.Handler.ForceOpenHandler(r.Context(), r.PathValue("poll_id"), managerID)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForceClose(w http.ResponseWriter, r *http.Request) {
	managerID, ok := s.requireManager(w, r)
	if !ok {
		return
	}
	resp, err := s.polls.Handler.ForceCloseHandler(r.Context(), r.PathValue("poll_id"), managerID)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelPoll(w http.ResponseWriter, r *http.Request) {
	managerID, ok := s.requireManager(w, r)
	if !ok {
		return
	}
	resp, err := s.polls.Handler.CancelPollHandler(r.Context(), r.PathValue("poll_id"), managerID)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastBallot(w http.ResponseWriter, r *http.Request) {
	voterID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if voterID == "" {
		writePollError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req pollhttp.CastBallotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.polls.Handler.CastBallotHandler(r.Context(), r.PathValue("poll_id"), voterID, req)
	if err != nil {
		writePollDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.WasUpdate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	requesterID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if requesterID == "" {
		writePollError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	resp, err := s.polls.Handler.TallyHandler(
		r.Context(),
		r.PathValue("poll_id"),
		requesterID,
		strings.TrimSpace(r.Header.Get("X-User-Role")),
	)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireManager gates manager-only routes on the identity headers. Role
// verification proper lives with the identity provider; the edge only checks
// that the caller presented a management role.
func (s *Server) requireManager(w http.ResponseWriter, r *http.Request) (string, bool) {
	managerID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if managerID == "" {
		writePollError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	role := strings.TrimSpace(r.Header.Get("X-User-Role"))
	if role != entities.RoleManager && role != entities.RoleSuperAdmin {
		writePollError(w, http.StatusForbidden, "forbidden", "management role is required")
		return "", false
	}
	return managerID, true
}

func writePollDomainError(w http.ResponseWriter, err error) {
	var validation *pollerrors.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusUnprocessableEntity, pollhttp.ErrorResponse{
			Code:    "validation_failed",
			Message: validation.Error(),
			Fields:  validation.Violations,
		})
		return
	}

	switch {
	case errors.Is(err, pollerrors.ErrPollNotFound):
		writePollError(w, http.StatusNotFound, "poll_not_found", err.Error())
	case errors.Is(err, pollerrors.ErrBallotNotFound):
		writePollError(w, http.StatusNotFound, "ballot_not_found", err.Error())
	case errors.Is(err, pollerrors.ErrUnknownOption):
		writePollError(w, http.StatusUnprocessableEntity, "unknown_option", err.Error())
	case errors.Is(err, pollerrors.ErrPollNotOpen):
		writePollError(w, http.StatusConflict, "poll_not_open", err.Error())
	case errors.Is(err, pollerrors.ErrDuplicateVote):
		writePollError(w, http.StatusConflict, "duplicate_vote", err.Error())
	case errors.Is(err, pollerrors.ErrInvalidTransition):
		writePollError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, pollerrors.ErrConflict),
		errors.Is(err, pollerrors.ErrIdempotencyConflict):
		writePollError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, pollerrors.ErrIdempotencyKeyRequired):
		writePollError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, pollerrors.ErrForbidden):
		writePollError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writePollError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writePollError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, pollhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
