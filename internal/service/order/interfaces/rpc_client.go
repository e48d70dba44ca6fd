package interfaces

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"orderflow/internal/pkg/httpclient"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
)

// IntakeClient 通过 RPC 调用 Intake，实现 application.OrderIntake，供 Gateway 使用
type IntakeClient struct {
	baseURL string
	client  *httpclient.Client
}

var _ application.OrderIntake = (*IntakeClient)(nil)

func NewIntakeClient(baseURL string, client *httpclient.Client) *IntakeClient {
	return &IntakeClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *IntakeClient) CreateOrder(ctx context.Context, req *application.CreateOrderRequest) (*application.CreateOrderResponse, error) {
	var resp application.CreateOrderResponse
	if err := c.client.PostJSON(ctx, c.baseURL+RouteCreateOrder, req, &resp); err != nil {
		return nil, c.translate(err)
	}
	return &resp, nil
}

func (c *IntakeClient) GetOrderStatus(ctx context.Context, orderID string) (*application.OrderView, error) {
	var view application.OrderView
	req := application.GetOrderStatusRequest{OrderID: orderID}
	if err := c.client.PostJSON(ctx, c.baseURL+RouteGetOrderStatus, req, &view); err != nil {
		return nil, c.translate(err)
	}
	return &view, nil
}

// Ping 探测 Intake 是否存活
func (c *IntakeClient) Ping(ctx context.Context) error {
	if err := c.client.GetJSON(ctx, c.baseURL+"/healthz", nil); err != nil {
		return c.translate(err)
	}
	return nil
}

// translate 把传输层错误还原为领域错误；连接失败视为 Unavailable
func (c *IntakeClient) translate(err error) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return errorFromRPC(statusErr.StatusCode, statusErr.Body)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: intake call: %w", domain.ErrUnavailable, err)
}
