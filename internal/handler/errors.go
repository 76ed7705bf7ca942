package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/outlet-commerce/internal/domain/catalog"
	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/internal/domain/order"
	"github.com/xenking/outlet-commerce/internal/domain/outlet"
)

// apiError is the client-facing form of a domain error.
type apiError struct {
	Code    int
	Kind    string
	Message string
}

var couponKinds = []error{
	coupon.ErrInvalidCoupon,
	coupon.ErrCouponExpired,
	coupon.ErrCouponBlocked,
	coupon.ErrCouponExhausted,
	coupon.ErrBelowMinimumSpend,
	coupon.ErrAboveMaximumSpend,
	coupon.ErrProductNotEligible,
	coupon.ErrCategoryNotEligible,
}

// classify maps err to a status code and error kind. Unknown errors become
// a 500 with a fixed message so store text never reaches the client.
func classify(err error) apiError {
	var (
		bad        *badRequestError
		quantity   *catalog.InvalidQuantityError
		rejection  *coupon.RejectionError
		transition *order.TransitionError
	)
	switch {
	case errors.As(err, &bad):
		return apiError{http.StatusBadRequest, "BadRequest", bad.msg}
	case errors.Is(err, catalog.ErrEmptyItems):
		return apiError{http.StatusBadRequest, "EmptyItems", err.Error()}
	case errors.As(err, &quantity):
		return apiError{http.StatusUnprocessableEntity, "InvalidQuantity", quantity.Error()}
	case errors.Is(err, catalog.ErrInvalidProduct):
		return apiError{http.StatusUnprocessableEntity, "InvalidProduct", err.Error()}
	case errors.Is(err, customer.ErrNotFound):
		return apiError{http.StatusNotFound, "CustomerNotFound", err.Error()}
	case errors.Is(err, order.ErrNotFound):
		return apiError{http.StatusNotFound, "OrderNotFound", err.Error()}
	case errors.Is(err, outlet.ErrNotFound):
		return apiError{http.StatusNotFound, "OutletNotFound", err.Error()}
	case errors.As(err, &rejection):
		return apiError{http.StatusUnprocessableEntity, rejection.Reason(), rejection.Error()}
	case errors.As(err, &transition):
		return apiError{http.StatusUnprocessableEntity, "InvalidTransition", transition.Error()}
	case errors.Is(err, order.ErrInvalidStatus):
		return apiError{http.StatusUnprocessableEntity, "InvalidStatus", err.Error()}
	case errors.Is(err, order.ErrNoteTooLong):
		return apiError{http.StatusUnprocessableEntity, "NoteTooLong", err.Error()}
	case errors.Is(err, order.ErrInvalidDeliveryCharge):
		return apiError{http.StatusUnprocessableEntity, "InvalidDeliveryCharge", err.Error()}
	case errors.Is(err, order.ErrPersistence):
		return apiError{http.StatusInternalServerError, "PersistenceFailure", "failed to persist order"}
	}
	for _, kind := range couponKinds {
		if errors.Is(err, kind) {
			return apiError{http.StatusUnprocessableEntity, coupon.Reason(kind), kind.Error()}
		}
	}
	return apiError{http.StatusInternalServerError, "Internal", "internal server error"}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	lg := zctx.From(r.Context())
	if e.Code >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.String("kind", e.Kind), zap.Error(err))
	}
	writeError(w, e.Code, e.Kind, e.Message)
}
