package httppresentation

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
)

type createItemRequest struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	UnitPrice string `json:"unit_price"`
	Stock     int    `json:"stock"`
}

func (h *Handler) handleCreateItem(c echo.Context) error {
	var req createItemRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	price, err := parsePrice(req.UnitPrice)
	if err != nil {
		return err
	}
	item, err := h.svc.Catalog.AddItem(c.Request().Context(), sessionFrom(c), appcatalog.NewItemInput{
		Name:      req.Name,
		Category:  catalogCategory(req.Category),
		UnitPrice: price,
		Stock:     req.Stock,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newItemResponse(item))
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleRestock(c echo.Context) error {
	var req restockRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.Catalog.Restock(ctx, sessionFrom(c), c.Param("id"), req.Quantity); err != nil {
		return err
	}
	return h.respondItem(c)
}

type priceRequest struct {
	UnitPrice string `json:"unit_price"`
}

func (h *Handler) handleSetPrice(c echo.Context) error {
	var req priceRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	price, err := parsePrice(req.UnitPrice)
	if err != nil {
		return err
	}
	if err := h.svc.Catalog.SetPrice(c.Request().Context(), sessionFrom(c), c.Param("id"), price); err != nil {
		return err
	}
	return h.respondItem(c)
}

func (h *Handler) respondItem(c echo.Context) error {
	item, err := h.svc.Catalog.Lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newItemResponse(item))
}

func (h *Handler) handleDeleteItem(c echo.Context) error {
	if err := h.svc.Catalog.DeleteItem(c.Request().Context(), sessionFrom(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleListAlerts(c echo.Context) error {
	alerts, err := h.svc.Catalog.Alerts(c.Request().Context(), sessionFrom(c), parseBool(c.QueryParam("include_resolved")))
	if err != nil {
		return err
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, newAlertResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) handleResolveAlert(c echo.Context) error {
	if err := h.svc.Catalog.ResolveAlert(c.Request().Context(), sessionFrom(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleDeleteOrder(c echo.Context) error {
	if err := h.svc.Orders.DeleteOrder(c.Request().Context(), sessionFrom(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleRetryStock(c echo.Context) error {
	state, err := h.svc.Orders.RetryStockCommit(c.Request().Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"order_id": c.Param("id"), "stock": string(state)})
}

func (h *Handler) handleStats(c echo.Context) error {
	stats, err := h.svc.Orders.Stats(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newStatsResponse(stats))
}

func parsePrice(v string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fault.Validation(fault.CodeInvalidPrice, "unit_price must be a decimal string")
	}
	return price, nil
}
