package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	pollingledger "agora/contexts/governance/polling-ledger"
	"agora/contexts/governance/polling-ledger/application/queries"
	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	ledgerhttp "agora/contexts/governance/polling-ledger/transport/http"
	_ "agora/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	apiPrefix    = "/api/v1"
	callerHeader = "X-User-Id"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	ledger pollingledger.Module
	http   *http.Server
}

func New(ledger pollingledger.Module, logger *slog.Logger, addr string) *Server {
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
		ledger: ledger,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.HandleFunc("POST "+apiPrefix+"/polls", s.handleCreatePoll)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/from-template", s.handleCreatePollFromTemplate)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls", s.handleListPolls)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}", s.handleGetPoll)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/results", s.handlePollResults)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/summary", s.handlePollSummary)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/analytics", s.handlePollAnalytics)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/ranked-result", s.handleRankedResult)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/export", s.handleExportPoll)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/active", s.handleIsActive)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/voters/{account}", s.handleHasVoted)
	s.mux.HandleFunc("GET "+apiPrefix+"/polls/{poll_id}/rewards", s.handlePollReward)

	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/votes", s.handleVote)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/votes/ranked", s.handleRankedVote)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/votes/approval", s.handleApprovalVote)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/votes/delegate", s.handleDelegateVote)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/votes/liquid", s.handleLiquidVote)
	s.mux.HandleFunc("POST "+apiPrefix+"/votes/batch", s.handleBatchVote)

	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/close", s.handleClosePoll)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/archive", s.handleArchivePoll)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/emergency-close", s.handleEmergencyClose)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/extend", s.handleExtendPoll)
	s.mux.HandleFunc("POST "+apiPrefix+"/polls/{poll_id}/rewards/distribute", s.handleDistributeRewards)

	s.mux.HandleFunc("GET "+apiPrefix+"/categories/{category}/polls", s.handlePollsByCategory)
	s.mux.HandleFunc("GET "+apiPrefix+"/tags/{tag}/polls", s.handlePollsByTag)

	s.mux.HandleFunc("PUT "+apiPrefix+"/delegation", s.handleSetDelegate)
	s.mux.HandleFunc("DELETE "+apiPrefix+"/delegation", s.handleRemoveDelegate)

	s.mux.HandleFunc("GET "+apiPrefix+"/accounts/{account}/polls", s.handleUserCreatedPolls)
	s.mux.HandleFunc("GET "+apiPrefix+"/accounts/{account}/votes", s.handleUserVotedPolls)
	s.mux.HandleFunc("GET "+apiPrefix+"/accounts/{account}/stats", s.handleUserStats)
	s.mux.HandleFunc("GET "+apiPrefix+"/accounts/{account}/reputation", s.handleReputation)
	s.mux.HandleFunc("GET "+apiPrefix+"/accounts/{account}/delegation", s.handleDelegation)
	s.mux.HandleFunc("GET "+apiPrefix+"/accounts/{account}/rewards", s.handleUserRewards)

	s.mux.HandleFunc("GET "+apiPrefix+"/templates", s.handleListTemplates)
	s.mux.HandleFunc("POST "+apiPrefix+"/templates", s.handleCreateTemplate)
	s.mux.HandleFunc("GET "+apiPrefix+"/templates/{template_id}", s.handleGetTemplate)
	s.mux.HandleFunc("POST "+apiPrefix+"/templates/{template_id}/toggle", s.handleToggleTemplate)

	s.mux.HandleFunc("GET "+apiPrefix+"/rewards/pool", s.handleRewardPool)
	s.mux.HandleFunc("POST "+apiPrefix+"/rewards/pool/fund", s.handleFundRewardPool)
	s.mux.HandleFunc("PUT "+apiPrefix+"/rewards/config", s.handleConfigureRewards)
	s.mux.HandleFunc("POST "+apiPrefix+"/rewards/claim", s.handleClaimRewards)

	s.mux.HandleFunc("GET "+apiPrefix+"/analytics", s.handleAnalytics)
	s.mux.HandleFunc("GET "+apiPrefix+"/analytics/active-polls", s.handleActivePollsCount)
	s.mux.HandleFunc("GET "+apiPrefix+"/status", s.handleStatus)
	s.mux.HandleFunc("PUT "+apiPrefix+"/admin/pause", s.handleSetPaused)
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.CreatePollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.CreatePollHandler(r.Context(), caller, req)
	s.respond(w, r, http.StatusCreated, resp, err)
}

func (s *Server) handleCreatePollFromTemplate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.CreateFromTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.CreatePollFromTemplateHandler(r.Context(), caller, req)
	s.respond(w, r, http.StatusCreated, resp, err)
}

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := queries.PollFilter{
		Tag:             strings.TrimSpace(query.Get("tag")),
		Creator:         strings.TrimSpace(query.Get("creator")),
		ActiveOnly:      queryBool(query.Get("active")),
		IncludeArchived: queryBool(query.Get("include_archived")),
	}
	if raw := query.Get("category"); raw != "" {
		category, ok := entities.ParseCategory(raw)
		if !ok {
			writeLedgerError(w, domainerrors.ErrInvalidCategory)
			return
		}
		filter.Category = category
	}
	if raw := query.Get("type"); raw != "" {
		pollType, ok := entities.ParsePollType(raw)
		if !ok {
			writeLedgerError(w, domainerrors.ErrInvalidPollType)
			return
		}
		filter.Type = pollType
	}
	if raw := query.Get("status"); raw != "" {
		status, ok := entities.ParsePollStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown poll status")
			return
		}
		filter.Status = status
	}
	offset, ok := queryInt(w, query.Get("offset"), "offset")
	if !ok {
		return
	}
	limit, ok := queryInt(w, query.Get("limit"), "limit")
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ListPollsHandler(r.Context(), filter, offset, limit)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.GetPollHandler(r.Context(), pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handlePollResults(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.PollResultsHandler(r.Context(), pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handlePollSummary(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.PollSummaryHandler(r.Context(), pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handlePollAnalytics(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.PollAnalyticsHandler(r.Context(), pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleRankedResult(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.RankedChoiceHandler(r.Context(), pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleExportPoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	body, format, err := s.ledger.Handler.ExportPollHandler(r.Context(), pollID, r.URL.Query().Get("format"))
	if err != nil {
		s.respond(w, r, http.StatusOK, nil, err)
		return
	}
	switch format {
	case queries.ExportCSV:
		w.Header().Set("Content-Type", "text/csv")
	case queries.ExportTable:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleIsActive(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.IsActiveHandler(r.Context(), pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.HasVotedHandler(r.Context(), pollID, r.PathValue("account"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handlePollReward(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.PollRewardHandler(r.Context(), pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.VoteHandler(r.Context(), caller, pollID, r.URL.Query().Get("mode"), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleRankedVote(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.RankedVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.RankedVoteHandler(r.Context(), caller, pollID, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleApprovalVote(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.ApprovalVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.ApprovalVoteHandler(r.Context(), caller, pollID, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleDelegateVote(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.DelegateVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.DelegateVoteHandler(r.Context(), caller, pollID, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleLiquidVote(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.LiquidVoteHandler(r.Context(), caller, pollID, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleBatchVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.BatchVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.BatchVoteHandler(r.Context(), caller, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleClosePoll(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ClosePollHandler(r.Context(), caller, pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleArchivePoll(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ArchivePollHandler(r.Context(), caller, pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleEmergencyClose(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.EmergencyClosePollHandler(r.Context(), caller, pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleExtendPoll(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.ExtendPollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.ExtendPollHandler(r.Context(), caller, pollID, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleDistributeRewards(w http.ResponseWriter, r *http.Request) {
	caller, pollID, ok := callerAndPoll(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.DistributeRewardsHandler(r.Context(), caller, pollID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handlePollsByCategory(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.PollsByCategoryHandler(r.Context(), r.PathValue("category"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handlePollsByTag(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.PollsByTagHandler(r.Context(), r.PathValue("tag"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleSetDelegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.SetDelegateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.ledger.Handler.SetDelegateHandler(r.Context(), caller, req); err != nil {
		s.respond(w, r, http.StatusOK, nil, err)
		return
	}
	resp, err := s.ledger.Handler.DelegationHandler(r.Context(), caller)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleRemoveDelegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Handler.RemoveDelegateHandler(r.Context(), caller); err != nil {
		s.respond(w, r, http.StatusOK, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserCreatedPolls(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.UserCreatedPollsHandler(r.Context(), r.PathValue("account"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleUserVotedPolls(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.UserVotedPollsHandler(r.Context(), r.PathValue("account"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.UserStatsHandler(r.Context(), r.PathValue("account"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ReputationHandler(r.Context(), r.PathValue("account"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleDelegation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.DelegationHandler(r.Context(), r.PathValue("account"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleUserRewards(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.UserRewardsHandler(r.Context(), r.PathValue("account"))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ListTemplatesHandler(r.Context(), queryBool(r.URL.Query().Get("active")))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.CreateTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.CreateTemplateHandler(r.Context(), caller, req)
	s.respond(w, r, http.StatusCreated, resp, err)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := uintParam(w, r, "template_id")
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.GetTemplateHandler(r.Context(), templateID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleToggleTemplate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	templateID, ok := uintParam(w, r, "template_id")
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ToggleTemplateHandler(r.Context(), caller, templateID)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleRewardPool(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.RewardPoolHandler(r.Context())
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleFundRewardPool(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.FundRewardPoolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.FundRewardPoolHandler(r.Context(), caller, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleConfigureRewards(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.ConfigureRewardsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.ConfigureRewardsHandler(r.Context(), caller, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ClaimRewardsHandler(r.Context(), caller)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.AnalyticsHandler(r.Context())
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleActivePollsCount(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ActivePollsCountHandler(r.Context())
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.StatusHandler(r.Context())
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.PauseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.ledger.Handler.SetPausedHandler(r.Context(), caller, req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err == nil {
		writeJSON(w, status, payload)
		return
	}
	if domainerrors.KindOf(err) == "" {
		s.logger.Error("ledger request failed",
			"event", "http_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	writeLedgerError(w, err)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(callerHeader))
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", callerHeader+" header is required")
		return "", false
	}
	return caller, true
}

func callerAndPoll(w http.ResponseWriter, r *http.Request) (string, uint64, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return "", 0, false
	}
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return "", 0, false
	}
	return caller, pollID, true
}

func pollIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	return uintParam(w, r, "poll_id")
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	value, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return value, true
}

func queryInt(w http.ResponseWriter, raw string, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return value, true
}

func queryBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func statusForKind(kind domainerrors.Kind) int {
	switch kind {
	case domainerrors.KindNotFound:
		return http.StatusNotFound
	case domainerrors.KindInvalidState, domainerrors.KindAlreadyDone:
		return http.StatusConflict
	case domainerrors.KindUnauthorized:
		return http.StatusForbidden
	case domainerrors.KindValidation:
		return http.StatusBadRequest
	case domainerrors.KindInsufficientResource:
		return http.StatusUnprocessableEntity
	case domainerrors.KindPolicyGate:
		return http.StatusPreconditionFailed
	case domainerrors.KindDependency:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	kind := domainerrors.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal_error", "internal server error")
		return
	}
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    domainerrors.CodeOf(err),
		Kind:    string(kind),
		Message: err.Error(),
	})
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
