package httppresentation

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const (
	componentHTTPHandler = "http_server"
	maxCallbackBody      = 64 << 10
)

// Services are the use cases the HTTP surface drives.
type Services struct {
	Catalog  *appcatalog.Service
	Cart     *appcart.Service
	Checkout *checkout.InitiateCheckoutUseCase
	Callback *checkout.HandleCallbackUseCase
	Orders   *checkout.OrderAdmin
}

type Options struct {
	JWTSecret     []byte
	SecureCookies bool
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	svc  Services
	opts Options
	log  observability.Logger
	tel  observability.Observability
}

func NewHandler(svc Services, opts Options, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	return &Handler{
		svc:  svc,
		opts: opts,
		log:  baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:  tel,
	}
}

// Router wires every route behind Recover → Observability → Session.
func (h *Handler) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.errorHandler

	e.Use(middleware.Recover())
	e.Use(ObservabilityMiddleware(h.log, h.tel))

	e.GET("/health", h.handleHealth)
	if h.opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.opts.Metrics))
	}
	// the provider calls back without a shopper session
	e.POST("/payments/mpesa/callback", h.handleCallback)

	shop := e.Group("", SessionMiddleware(h.opts.JWTSecret, h.opts.SecureCookies))
	shop.GET("/menu", h.handleMenu)
	shop.GET("/cart", h.handleCart)
	shop.GET("/cart/count", h.handleCartCount)
	shop.POST("/cart/items", h.handleAddToCart)
	shop.PATCH("/cart/items/:id", h.handleAdjustCart)
	shop.DELETE("/cart/items/:id", h.handleRemoveFromCart)
	shop.POST("/checkout", h.handleCheckout)
	shop.GET("/orders/:id", h.handleGetOrder)

	admin := shop.Group("/admin", RequireAdmin)
	admin.POST("/items", h.handleCreateItem)
	admin.POST("/items/:id/restock", h.handleRestock)
	admin.PUT("/items/:id/price", h.handleSetPrice)
	admin.DELETE("/items/:id", h.handleDeleteItem)
	admin.GET("/alerts", h.handleListAlerts)
	admin.POST("/alerts/:id/resolve", h.handleResolveAlert)
	admin.DELETE("/orders/:id", h.handleDeleteOrder)
	admin.POST("/orders/:id/retry-stock", h.handleRetryStock)
	admin.GET("/stats", h.handleStats)

	return e
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handler) handleMenu(c echo.Context) error {
	items, err := h.svc.Catalog.Menu(c.Request().Context(), catalogCategory(c.QueryParam("category")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newMenuResponse(items))
}

func (h *Handler) handleCart(c echo.Context) error {
	view, err := h.svc.Cart.Snapshot(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newCartResponse(view))
}

func (h *Handler) handleCartCount(c echo.Context) error {
	n, err := h.svc.Cart.Count(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

type addToCartRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) handleAddToCart(c echo.Context) error {
	var req addToCartRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := h.svc.Cart.AddItem(c.Request().Context(), sessionFrom(c), req.ItemID, req.Quantity); err != nil {
		return err
	}
	return h.respondCart(c, http.StatusCreated)
}

type adjustCartRequest struct {
	Action string `json:"action"`
	Amount int    `json:"amount"`
}

func (h *Handler) handleAdjustCart(c echo.Context) error {
	var req adjustCartRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	adj := appcart.Adjustment{Action: appcart.Action(req.Action), Amount: req.Amount}
	if err := h.svc.Cart.AdjustItem(c.Request().Context(), sessionFrom(c), c.Param("id"), adj); err != nil {
		return err
	}
	return h.respondCart(c, http.StatusOK)
}

func (h *Handler) handleRemoveFromCart(c echo.Context) error {
	if err := h.svc.Cart.RemoveItem(c.Request().Context(), sessionFrom(c), c.Param("id")); err != nil {
		return err
	}
	return h.respondCart(c, http.StatusOK)
}

func (h *Handler) respondCart(c echo.Context, status int) error {
	view, err := h.svc.Cart.Snapshot(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(status, newCartResponse(view))
}

type checkoutRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type checkoutResponse struct {
	OrderID           string `json:"order_id"`
	Status            string `json:"status"`
	Total             string `json:"total"`
	ExternalReference string `json:"external_reference"`
}

func (h *Handler) handleCheckout(c echo.Context) error {
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	res, err := h.svc.Checkout.Execute(c.Request().Context(), checkout.InitiateCheckoutInput{
		Session:  sessionFrom(c),
		Customer: checkout.CustomerInfo{Name: req.Name, Phone: req.Phone},
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, checkoutResponse{
		OrderID:           res.OrderID,
		Status:            string(res.Status),
		Total:             res.Total,
		ExternalReference: res.ExternalReference,
	})
}

func (h *Handler) handleGetOrder(c echo.Context) error {
	o, err := h.svc.Orders.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderResponse(o))
}

// callbackAck is what Daraja expects back; anything but 2xx makes it retry.
type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func (h *Handler) handleCallback(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	out, err := h.svc.Callback.ExecuteRaw(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	desc := "Accepted"
	if out.Duplicate {
		desc = "Already processed"
	}
	return c.JSON(http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: desc})
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
