package interfaces

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
)

// GatewayHandler 把对外的 REST 调用翻译成 Intake RPC 调用
type GatewayHandler struct {
	intake         application.OrderIntake
	allowedOrigins []string
	requestTimeout time.Duration
}

func NewGatewayHandler(intake application.OrderIntake, allowedOrigins []string) *GatewayHandler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &GatewayHandler{intake: intake, allowedOrigins: allowedOrigins, requestTimeout: 10 * time.Second}
}

// gatewayCreateRequest 用指针区分缺失字段与零值
type gatewayCreateRequest struct {
	CustomerName *string  `json:"customer_name"`
	Items        []string `json:"items"`
	Total        *float64 `json:"total"`
}

type gatewayError struct {
	Error string `json:"error"`
}

// Routes 返回 Gateway 的路由树
func (h *GatewayHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "traceparent", "tracestate", "baggage"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	orderRoutes := func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/{order_id}", h.getOrder)
	}
	r.Route("/orders", orderRoutes)
	// 兼容旧前端
	r.Route("/api/orders", orderRoutes)
	r.Get("/api/health", h.health)
	return r
}

// RegisterRoutes 把路由树挂到 ServeMux 的根上
func (h *GatewayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/", h.Routes())
}

func (h *GatewayHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *GatewayHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var body gatewayCreateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, gatewayError{Error: "malformed JSON body"})
		return
	}
	if body.CustomerName == nil || strings.TrimSpace(*body.CustomerName) == "" || len(body.Items) == 0 || body.Total == nil || *body.Total == 0 {
		writeJSON(w, http.StatusBadRequest, gatewayError{Error: "missing required fields: customer_name, items, total"})
		return
	}

	resp, err := h.intake.CreateOrder(r.Context(), &application.CreateOrderRequest{
		CustomerName: *body.CustomerName,
		Items:        body.Items,
		Total:        *body.Total,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *GatewayHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	view, err := h.intake.GetOrderStatus(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// writeError 只区分三类：输入无效、订单不存在、其他失败。内部细节只进日志。
func (h *GatewayHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, gatewayError{Error: "invalid order request"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, gatewayError{Error: "order not found"})
	case errors.Is(err, domain.ErrUnavailable):
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Intake unavailable")
		writeJSON(w, http.StatusInternalServerError, gatewayError{Error: "service temporarily unavailable"})
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Intake call failed")
		writeJSON(w, http.StatusInternalServerError, gatewayError{Error: "internal error"})
	}
}
