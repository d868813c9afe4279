// Package server 提供本地 HTTP 接口：上报签到结果、查询状态、手动触发
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/scheduler"
	"humg.top/checkin_scheduler/internal/storage"
)

// Service 调度器对外暴露的能力
type Service interface {
	Status() scheduler.Status
	TriggerNow(ctx context.Context, done func(models.Attempt)) error
	PostOutcome(o models.CheckInOutcome) models.CheckInOutcome
}

// Handler HTTP 处理器
type Handler struct {
	svc     Service
	history storage.HistoryStore
	logger  *slog.Logger

	// runCtx 手动签到使用的上下文，服务关闭时取消
	runCtx context.Context
}

// NewHandler history 可以为空
func NewHandler(runCtx context.Context, svc Service, history storage.HistoryStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:     svc,
		history: history,
		logger:  logger.With("component", "server"),
		runCtx:  runCtx,
	}
}

// Router 构建路由
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/history", h.GetHistory)
		r.Post("/outcomes", h.PostOutcome)
		r.Post("/checkin", h.PostCheckIn)
	})
	return r
}

// writeJSON 以指定状态码输出 JSON；状态码已写出，编码失败只能记录
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", "status", status, "error", err)
	}
}

// writeError 输出 {"error": message}
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// Health 存活检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus 调度器状态快照
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Status())
}

// outcomeRequest 上报请求体
type outcomeRequest struct {
	Success   *bool  `json:"success"`
	SourceURL string `json:"source_url"`
	Message   string `json:"message"`
}

// PostOutcome 浏览器页面或外部脚本上报签到结果
func (h *Handler) PostOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Success == nil {
		h.writeError(w, http.StatusBadRequest, "success is required")
		return
	}

	posted := h.svc.PostOutcome(models.CheckInOutcome{
		Success:   *req.Success,
		SourceURL: req.SourceURL,
		Message:   req.Message,
		Source:    "api",
	})
	h.logger.Info("Outcome posted via API",
		"outcome_id", posted.ID, "success", posted.Success,
		"request_id", chiMiddleware.GetReqID(r.Context()))
	h.writeJSON(w, http.StatusAccepted, posted)
}

// PostCheckIn 触发一次手动签到，已有流程在执行时返回 409
func (h *Handler) PostCheckIn(w http.ResponseWriter, r *http.Request) {
	err := h.svc.TriggerNow(h.runCtx, func(a models.Attempt) {
		h.logger.Info("Manual check-in finished", "attempt_id", a.ID, "success", a.Success, "outcome", a.Outcome)
	})
	if errors.Is(err, scheduler.ErrBusy) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// GetHistory 最近的签到记录，?limit= 默认 20，最大 500
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 500)
	}

	attempts, err := h.history.RecentAttempts(r.Context(), limit)
	if err != nil {
		h.logger.Error("Load history failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	h.writeJSON(w, http.StatusOK, attempts)
}

// Server 带优雅关闭的 HTTP 服务
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New addr 为监听地址
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.With("component", "server"),
	}
}

// Start 后台监听，监听失败只记录日志
func (s *Server) Start() {
	go func() {
		s.logger.Info("Server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed", "error", err)
		}
	}()
}

// Shutdown 停止接收新请求，等待进行中的请求结束
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
