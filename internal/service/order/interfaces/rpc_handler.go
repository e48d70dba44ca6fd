package interfaces

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
)

// maxRequestBody 限制单个请求体大小
const maxRequestBody = 1 << 20

// RPC 路由
const (
	RouteCreateOrder    = "/rpc/create_order"
	RouteGetOrderStatus = "/rpc/get_order_status"
)

// IntakeRPCHandler 把 Intake 的两个用例暴露为 HTTP/JSON RPC
type IntakeRPCHandler struct {
	service application.OrderIntake
}

func NewIntakeRPCHandler(service application.OrderIntake) *IntakeRPCHandler {
	return &IntakeRPCHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *IntakeRPCHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+RouteCreateOrder, h.createOrder)
	mux.HandleFunc("POST "+RouteGetOrderStatus, h.getOrderStatus)
}

func (h *IntakeRPCHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req application.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeRPCError(w, r, err)
		return
	}

	resp, err := h.service.CreateOrder(r.Context(), &req)
	if err != nil {
		writeRPCError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *IntakeRPCHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req application.GetOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeRPCError(w, r, err)
		return
	}

	view, err := h.service.GetOrderStatus(r.Context(), req.OrderID)
	if err != nil {
		writeRPCError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// decodeJSON 解码请求体，格式错误统一视为 InvalidArgument
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return &domain.InvalidArgumentError{Field: "body", Reason: errors.Wrap(err, "malformed JSON").Error()}
	}
	return nil
}
