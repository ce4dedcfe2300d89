package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenMCP-Dialog/internal/agent"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/observability/metrics"
	"OpenMCP-Dialog/internal/session"
	"OpenMCP-Dialog/internal/storage"
	"OpenMCP-Dialog/internal/task"
	"OpenMCP-Dialog/pkg/logger"
)

const maxBodyBytes = 1 << 20

// TurnHandler 是 API 所需的编排能力，由 *agent.Agent 实现。
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID, message string) (*agent.TurnResult, error)
	History(ctx context.Context, sessionID string) (*session.Session, error)
	Transcripts(ctx context.Context, sessionID string, limit int) ([]storage.TranscriptRecord, error)
}

// TurnQueue 是异步轮次接口，由 *task.Service 实现。
type TurnQueue interface {
	Submit(ctx context.Context, req task.TurnRequest) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Task, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.TaskStats, error)
}

// ChatRequest 是同步对话请求体。
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ErrorBody 是所有错误响应的统一结构。
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 描述错误码与可展示的信息。
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr           string
	turns          TurnHandler
	queue          TurnQueue
	metrics        http.Handler
	readTimeout    time.Duration
	writeTimeout   time.Duration
	shutdownWindow time.Duration
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithTurnQueue 启用异步轮次接口。
func WithTurnQueue(queue TurnQueue) Option {
	return func(s *Server) {
		s.queue = queue
	}
}

// WithMetricsHandler 在 /metrics 上挂载指标处理器。
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

// WithTimeouts 设置读写超时与优雅关闭窗口，零值保持默认。
func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if shutdown > 0 {
			s.shutdownWindow = shutdown
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, turns TurnHandler, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		turns:          turns,
		readTimeout:    15 * time.Second,
		writeTimeout:   60 * time.Second,
		shutdownWindow: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回带指标中间件的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/v1/chat", "chat", s.handleChat)
	s.route(mux, "GET /api/v1/sessions/{id}", "session", s.handleSession)
	s.route(mux, "GET /api/v1/sessions/{id}/transcripts", "transcripts", s.handleTranscripts)
	s.route(mux, "POST /api/v1/turns", "turn_submit", s.handleSubmitTurn)
	s.route(mux, "GET /api/v1/turns", "turn_list", s.handleListTurns)
	s.route(mux, "GET /api/v1/turns/stats", "turn_stats", s.handleTurnStats)
	s.route(mux, "GET /api/v1/turns/{id}", "turn_detail", s.handleTurnDetail)
	s.route(mux, "GET /health", "health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, handler http.HandlerFunc) {
	mux.Handle(pattern, instrument(name, handler))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.L().Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownWindow)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.turns == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "编排器未初始化"))
		return
	}
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.turns.HandleTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.turns == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "编排器未初始化"))
		return
	}
	sess, err := s.turns.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.turns == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "编排器未初始化"))
		return
	}
	records, err := s.turns.Transcripts(r.Context(), r.PathValue("id"), parseLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []storage.TranscriptRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "异步轮次未启用"))
		return
	}
	var req task.TurnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	submitted, err := s.queue.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "异步轮次未启用"))
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.queue.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTurnStats(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "异步轮次未启用"))
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.queue.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTurnDetail(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "异步轮次未启用"))
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "缺少任务 ID"))
		return
	}
	found, err := s.queue.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"async_jobs": s.queue != nil,
	})
}

func parseLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 20
}

func parseListOptions(r *http.Request) ([]task.ListOption, error) {
	query := r.URL.Query()
	opts := []task.ListOption{task.WithLimit(parseLimit(r))}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "offset 参数无效")
		}
		opts = append(opts, task.WithOffset(offset))
	}
	if raw := query.Get("status"); raw != "" {
		statuses, err := task.ParseStatuses(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if sessionID := query.Get("session_id"); sessionID != "" {
		opts = append(opts, task.WithSessionID(sessionID))
	}
	if q := query.Get("q"); q != "" {
		opts = append(opts, task.WithQuery(q))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, task.CodeTaskValidation:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure, xerrors.CodeToolUnavailable, xerrors.CodeQueueFailure, task.CodeTaskPublish:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	detail := ErrorDetail{Code: string(code), Message: err.Error()}
	if e, ok := xerrors.From(err); ok {
		detail.Message = e.Message()
		detail.TraceID = e.Metadata()["trace_id"]
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败",
			slog.Any("error", err),
			slog.String("code", string(code)),
			slog.String("trace_id", detail.TraceID),
		)
		if status == http.StatusInternalServerError {
			detail.Message = "服务暂时不可用，请稍后重试"
		}
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "服务已关闭"))
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
