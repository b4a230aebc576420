// Package api exposes the gateway-facing callback surface: the notification
// endpoint the gateway calls after a payment and the order detail document it
// pulls afterwards. Responses follow the gateway's XML envelope conventions,
// including its error document.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"commerceplatform/internal/commerce"
	"commerceplatform/internal/easypay"
	"commerceplatform/internal/easypay/gateway"
)

var validate = validator.New()

// OrderSource loads orders for the detail document.
type OrderSource interface {
	GetPaymentOrder(ctx context.Context, number string) (*commerce.Order, error)
}

// Handler handles gateway callback requests.
type Handler struct {
	registrar easypay.Registrar
	orders    OrderSource
	logger    *slog.Logger
}

// NewHandler creates a callback handler.
func NewHandler(registrar easypay.Registrar, orders OrderSource, logger *slog.Logger) *Handler {
	return &Handler{registrar: registrar, orders: orders, logger: logger}
}

// Routes returns the callback routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/register", h.Register)
	r.Get("/register/{store}", h.Register)
	r.Get("/detail", h.Detail)

	return r
}

// RegisterParams are the query parameters of a payment notification.
type RegisterParams struct {
	ClientID      int    `validate:"required"`
	Username      string `validate:"required"`
	TransactionID string `validate:"required"`
	DocType       string `validate:"omitempty,max=32"`
}

// Register handles the gateway's payment notification. The response echoes
// the notification identity inside the envelope the gateway expects; an
// error resolves to the gateway's error document.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID, _ := strconv.Atoi(q.Get("ep_cin"))
	params := RegisterParams{
		ClientID:      clientID,
		Username:      q.Get("ep_user"),
		TransactionID: q.Get("ep_doc"),
		DocType:       q.Get("ep_type"),
	}
	if err := validate.Struct(&params); err != nil {
		errorDocument(w, http.StatusBadRequest, "notification is missing required parameters")
		return
	}

	storeID := chi.URLParam(r, "store")

	result, err := h.registrar.RegisterPayment(r.Context(), storeID, params.ClientID, params.Username, params.TransactionID, params.DocType)
	if err != nil {
		h.writeError(w, err)
		return
	}

	root := &El{Name: "getautomb_key"}
	root.Child("ep_status", "ok0")
	root.Child("ep_message", "payment registered")
	root.Childf("ep_cin", "%d", params.ClientID)
	root.Child("ep_user", params.Username)
	root.Child("ep_doc", params.TransactionID)
	if params.DocType != "" {
		root.Child("ep_type", params.DocType)
	}
	root.Child("t_key", result.OrderID)
	writeDocument(w, http.StatusOK, root)
}

// Detail handles the gateway's order detail pull: given the order key from a
// registered payment, it returns the order's totals, parties and lines.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("t_key")
	if number == "" {
		errorDocument(w, http.StatusBadRequest, "t_key is required")
		return
	}

	order, err := h.orders.GetPaymentOrder(r.Context(), number)
	if err != nil {
		h.writeError(w, err)
		return
	}

	root := &El{Name: "get_detail"}
	root.Child("ep_status", "ok0")
	root.Child("ep_message", "order found")

	info := El{Name: "order_info"}
	info.Child("t_key", order.Number)
	info.Child("order_total", order.Total.StringFixedBank(2))
	info.Child("order_tax", order.TaxTotal.StringFixedBank(2))
	if billing := order.BillingAddress(); billing != nil {
		info.Append(addressElement("billing_address", billing))
	}
	if shipping := order.ShippingAddress(); shipping != nil {
		info.Append(addressElement("shipping_address", shipping))
	}
	root.Append(info)

	for _, item := range order.Items {
		line := El{Name: "order_item"}
		line.Child("name", item.Name)
		line.Childf("quantity", "%d", item.Quantity)
		line.Child("price", item.PriceWithTax.StringFixedBank(2))
		root.Append(line)
	}

	writeDocument(w, http.StatusOK, root)
}

func addressElement(name string, a *commerce.Address) El {
	el := El{Name: name}
	el.Child("first_name", a.FirstName)
	el.Child("last_name", a.LastName)
	el.Child("email", a.Email)
	el.Child("line1", a.Line1)
	if a.Line2 != "" {
		el.Child("line2", a.Line2)
	}
	el.Child("city", a.City)
	el.Child("postal_code", a.PostalCode)
	el.Child("country", a.CountryName)
	return el
}

// writeError maps domain failures to the gateway's error document.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validation *easypay.ValidationError
	var notFound *easypay.NotFoundError
	var gatewayErr *gateway.Error
	var decodeErr *gateway.DecodeError

	switch {
	case errors.As(err, &validation):
		errorDocument(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &notFound):
		errorDocument(w, http.StatusNotFound, notFound.Message)
	case errors.As(err, &gatewayErr), errors.As(err, &decodeErr):
		errorDocument(w, http.StatusBadGateway, "payment gateway failure")
	default:
		h.logger.Error("callback request failed", "error", err)
		errorDocument(w, http.StatusInternalServerError, "internal failure")
	}
}
