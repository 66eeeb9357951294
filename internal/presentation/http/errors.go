package httppresentation

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ItemID  string `json:"item_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindConflict:
		return http.StatusConflict
	case fault.KindExternalService:
		return http.StatusBadGateway
	case fault.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders classified failures as {"error":{code,message,item_id}}.
// Unclassified errors become 500 without leaking their text.
func (h *Handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   errorBody
		he     *echo.HTTPError
		fe     *fault.Error
	)
	switch {
	case errors.As(err, &fe):
		status = statusFor(fe.Kind)
		body = errorBody{Code: fe.Code, Message: publicMessage(fe), ItemID: fe.ItemID}
	case errors.As(err, &he):
		status = he.Code
		body = errorBody{Code: http.StatusText(he.Code), Message: http.StatusText(he.Code)}
		if msg, ok := he.Message.(string); ok {
			body.Message = msg
		}
	default:
		status = http.StatusInternalServerError
		body = errorBody{Code: "INTERNAL", Message: "internal error"}
	}

	if status >= http.StatusInternalServerError {
		logctx.FromOr(c.Request().Context(), h.log).Error("http_request_failed",
			observability.F("status", status),
			observability.Err(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, errorResponse{Error: body})
}

// publicMessage keeps provider and storage details out of responses.
func publicMessage(fe *fault.Error) string {
	switch {
	case fe.Message != "":
		return fe.Message
	case fe.Kind == fault.KindExternalService:
		return "payment provider unavailable"
	case fe.Err != nil && fe.Kind != fault.KindInvariantViolation && fe.Kind != "":
		return fe.Err.Error()
	default:
		return http.StatusText(statusFor(fe.Kind))
	}
}
