package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/order/domain"
)

// Intake RPC 错误码
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
)

// RPCError 是 Intake RPC 的错误响应体
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rpcStatus 把领域错误映射为错误码与 HTTP 状态码，内部错误不暴露细节
func rpcStatus(err error) (int, RPCError) {
	var invalid *domain.InvalidArgumentError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, RPCError{Code: CodeInvalidArgument, Message: invalid.Error()}
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, RPCError{Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, RPCError{Code: CodeNotFound, Message: "order not found"}
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, RPCError{Code: CodeUnavailable, Message: "service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, RPCError{Code: CodeInternal, Message: "internal error"}
	}
}

func writeRPCError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := rpcStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("RPC failed")
	}
	writeJSON(w, status, body)
}

// errorFromRPC 是 rpcStatus 的逆映射，供 RPC 客户端还原领域错误
func errorFromRPC(status int, body []byte) error {
	var rpcErr RPCError
	if err := json.Unmarshal(body, &rpcErr); err != nil || rpcErr.Code == "" {
		return errors.Errorf("intake returned status %d", status)
	}
	switch rpcErr.Code {
	case CodeInvalidArgument:
		return errors.Wrap(domain.ErrInvalidArgument, rpcErr.Message)
	case CodeNotFound:
		return errors.Wrap(domain.ErrNotFound, rpcErr.Message)
	case CodeUnavailable:
		return errors.Wrap(domain.ErrUnavailable, rpcErr.Message)
	default:
		return errors.Errorf("intake internal error: %s", rpcErr.Message)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
