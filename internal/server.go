package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/config"
	"storefront/entity"
	"storefront/services"
)

const (
	paymentInitiate = "/api/payfast/initiate"
	paymentProcess  = "/payment/process"
	paymentNotify   = "/api/payfast/notify"
	createOrder     = "/api/orders"
	getOrder        = "/api/orders/:order_id"
	watchOrder      = "/api/orders/:order_id/watch"
	listProducts    = "/api/products"
	shippingRates   = "/api/shipping/calculate"
	cartRoot        = "/api/cart/:token"
	cartItems       = "/api/cart/:token/items"
	cartItem        = "/api/cart/:token/items/:product_id"
	cartCheckout    = "/api/cart/:token/checkout"

	maxBodySize = 1 << 20
)

var processForm = template.Must(template.New("process").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting to payment</title></head>
<body onload="document.forms[0].submit()">
<p>Please wait while we redirect you to PayFast...</p>
<form action="{{.ProcessUrl}}" method="POST">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<input type="hidden" name="signature" value="{{.Signature}}">
<noscript><button type="submit">Proceed to payment</button></noscript>
</form>
</body>
</html>
`))

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	handler    http.Handler
	payments   services.Payments
	commerce   services.Commerce
	carts      *CartStore
	poller     *OrderPoller
	logger     services.LogHandler
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type orderResponse struct {
	Success bool          `json:"success"`
	Order   *entity.Order `json:"order"`
}

type createdOrderResponse struct {
	Success bool `json:"success"`
	entity.OrderReference
}

type shippingResponse struct {
	Success bool                    `json:"success"`
	Methods []entity.ShippingMethod `json:"methods"`
}

type cartResponse struct {
	Success  bool         `json:"success"`
	Cart     *entity.Cart `json:"cart"`
	Subtotal string       `json:"subtotal"`
	Count    int          `json:"count"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartCheckoutRequest struct {
	Billing    entity.Address `json:"billing"`
	Shipping   entity.Address `json:"shipping"`
	CustomerId int            `json:"customer_id,omitempty"`
}

type watchSummary struct {
	Outcome PollOutcome `json:"outcome"`
	Status  string      `json:"status,omitempty"`
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf: conf,
	}

	router := httprouter.New()
	server.Register(router)
	server.handler = otelhttp.NewHandler(requestIDHandler(router), "storefront")
	server.httpServer = &http.Server{
		Handler:           server.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(paymentInitiate, s.paymentInitiate)
	router.POST(paymentProcess, s.paymentProcess)
	router.POST(paymentNotify, s.paymentNotify)

	router.POST(createOrder, s.createOrder)
	router.GET(getOrder, s.getOrder)
	router.GET(watchOrder, s.watchOrder)

	router.GET(listProducts, s.listProducts)
	router.POST(shippingRates, s.shippingRates)

	router.GET(cartRoot, s.getCart)
	router.DELETE(cartRoot, s.clearCart)
	router.POST(cartItems, s.addCartItem)
	router.PUT(cartItem, s.updateCartItem)
	router.DELETE(cartItem, s.removeCartItem)
	router.POST(cartCheckout, s.checkoutCart)
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

// SetCommerce sets the backend and the default order poller on top of it.
func (s *Server) SetCommerce(commerce services.Commerce) {
	s.commerce = commerce
	if s.poller == nil {
		s.poller = NewOrderPoller(commerce.GetOrder)
	}
}

func (s *Server) SetPoller(poller *OrderPoller) {
	s.poller = poller
}

func (s *Server) SetCartStore(carts *CartStore) {
	s.carts = carts
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) paymentInitiate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	var request entity.InitiatePaymentRequest
	if err := decodeBody(r, &request); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] initiate payment: %v", reqID, err))
		s.writeError(w, "Invalid payment request", err)
		return
	}

	payment, err := s.payments.Initiate(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] initiate payment for order %s", reqID, request.OrderId), err)
		if errors.Is(err, ErrConfiguration) {
			s.writeError(w, "PayFast configuration missing", err)
			return
		}
		s.writeError(w, "Failed to initiate payment", err)
		return
	}

	s.writeJSON(w, http.StatusOK, payment)
}

// paymentProcess answers with a page that posts the signed fields to the gateway.
func (s *Server) paymentProcess(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	var request entity.InitiatePaymentRequest
	if err := decodeBody(r, &request); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] process payment: %v", reqID, err))
		s.writeError(w, "Invalid payment request", err)
		return
	}

	payment, err := s.payments.Initiate(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] process payment for order %s", reqID, request.OrderId), err)
		s.writeError(w, "Failed to initiate payment", err)
		return
	}

	data := struct {
		ProcessUrl string
		Fields     []entity.Field
		Signature  string
	}{
		ProcessUrl: payment.ProcessUrl,
		Fields:     payment.PaymentData.Ordered(),
		Signature:  payment.Signature,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err = processForm.Execute(w, data); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] render payment form", reqID), err)
	}
}

// paymentNotify acknowledges a notification with 200 only when it was accepted.
func (s *Server) paymentNotify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment notify: get body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = s.payments.Notify(ctx, body)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, ErrSignatureMismatch):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid signature"})
	case errors.Is(err, ErrValidationFailed):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed"})
	case errors.Is(err, ErrValidationCall):
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Validation error"})
	default:
		s.logger.Error(fmt.Sprintf("[%s] payment notify: process body", reqID), err)
		s.writeError(w, "Notification processing failed", err)
	}
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	var request entity.CreateOrderRequest
	if err := decodeBody(r, &request); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] create order: %v", reqID, err))
		s.writeError(w, "Invalid order request", err)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] create order: %s; %d items", reqID, request.Billing.Email, len(request.LineItems)))
	order, err := s.commerce.CreateOrder(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] create order", reqID), err)
		s.writeError(w, "Failed to create order", err)
		return
	}

	s.writeJSON(w, http.StatusOK, createdOrderResponse{Success: true, OrderReference: s.orderReference(order)})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	orderId := ps.ByName("order_id")
	order, err := s.commerce.GetOrder(ctx, orderId)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] get order %s", reqID, orderId), err)
		s.writeError(w, "Failed to fetch order", err)
		return
	}

	s.logger.Debug(fmt.Sprintf("[%s] order %s: status %s; total %s", reqID, orderId, order.Status, order.Total))
	s.writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: order})
}

// watchOrder streams order snapshots as server-sent events until the payment
// status settles, the poll cutoff passes or the client goes away.
func (s *Server) watchOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)
	orderId := ps.ByName("order_id")

	if _, err := strconv.Atoi(orderId); err != nil {
		s.writeError(w, "Invalid order id", fmt.Errorf("%w: %s", ErrBadRequest, orderId))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, "Streaming unsupported", errors.New("response writer can not flush"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	order, outcome := s.poller.Watch(ctx, orderId, func(update PollUpdate) {
		if update.Err != nil {
			s.logger.Warn(fmt.Sprintf("[%s] watch order %s: %v", reqID, orderId, update.Err))
			writeEvent(w, "error", errorResponse{Error: "Failed to fetch order", Details: errorDetails(update.Err)})
		} else {
			writeEvent(w, "order", update.Order)
		}
		flusher.Flush()
	})

	summary := watchSummary{Outcome: outcome}
	if order != nil {
		summary.Status = order.Status
	}
	s.logger.Info(fmt.Sprintf("[%s] watch order %s finished: %s %s", reqID, orderId, summary.Outcome, summary.Status))
	if outcome != PollCancelled {
		writeEvent(w, "done", summary)
		flusher.Flush()
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	if slug := strings.TrimSpace(r.URL.Query().Get("slug")); slug != "" {
		product, err := s.commerce.ProductBySlug(ctx, slug)
		if err != nil {
			s.logger.Error(fmt.Sprintf("[%s] product %s", reqID, slug), err)
			if errors.Is(err, ErrNotFound) {
				s.writeError(w, "Product not found", err)
				return
			}
			s.writeError(w, "Failed to fetch products", err)
			return
		}
		s.writeJSON(w, http.StatusOK, product)
		return
	}

	products, err := s.commerce.Products(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] products", reqID), err)
		s.writeError(w, "Failed to fetch products", err)
		return
	}
	s.logger.Debug(fmt.Sprintf("[%s] fetched %d products", reqID, len(products)))
	s.writeJSON(w, http.StatusOK, products)
}

func (s *Server) shippingRates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	var request entity.ShippingRequest
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, "Invalid shipping request", err)
		return
	}

	methods, err := s.commerce.ShippingMethods(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] shipping for %s %s", reqID, request.Country, request.Postcode), err)
		s.writeError(w, "Failed to calculate shipping", err)
		return
	}
	s.writeJSON(w, http.StatusOK, shippingResponse{Success: true, Methods: methods})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	cart, err := s.carts.Get(r.Context(), ps.ByName("token"))
	s.writeCart(w, r, cart, err)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	token := ps.ByName("token")
	if err := s.carts.Clear(r.Context(), token); err != nil {
		s.writeCart(w, r, nil, err)
		return
	}
	s.writeCart(w, r, &entity.Cart{Token: token, Items: []entity.CartItem{}}, nil)
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var item entity.CartItem
	if err := decodeBody(r, &item); err != nil {
		s.writeError(w, "Invalid cart item", err)
		return
	}
	cart, err := s.carts.Add(r.Context(), ps.ByName("token"), item)
	s.writeCart(w, r, cart, err)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productId, err := strconv.Atoi(ps.ByName("product_id"))
	if err != nil {
		s.writeError(w, "Invalid product id", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	var request quantityRequest
	if err = decodeBody(r, &request); err != nil {
		s.writeError(w, "Invalid quantity", err)
		return
	}
	cart, err := s.carts.UpdateQuantity(r.Context(), ps.ByName("token"), productId, request.Quantity)
	s.writeCart(w, r, cart, err)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productId, err := strconv.Atoi(ps.ByName("product_id"))
	if err != nil {
		s.writeError(w, "Invalid product id", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	cart, err := s.carts.Remove(r.Context(), ps.ByName("token"), productId)
	s.writeCart(w, r, cart, err)
}

// checkoutCart creates a pending order from the cart contents and empties the cart.
func (s *Server) checkoutCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)
	token := ps.ByName("token")

	var request cartCheckoutRequest
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, "Invalid checkout request", err)
		return
	}
	cart, err := s.carts.Get(ctx, token)
	if err != nil {
		s.writeCart(w, r, nil, err)
		return
	}
	if len(cart.Items) == 0 {
		s.writeError(w, "Cart is empty", fmt.Errorf("%w: cart %s is empty", ErrBadRequest, secret(token)))
		return
	}

	order, err := s.commerce.CreateOrder(ctx, &entity.CreateOrderRequest{
		Billing:    request.Billing,
		Shipping:   request.Shipping,
		LineItems:  cart.LineItems(),
		CustomerId: request.CustomerId,
	})
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] checkout cart %s", reqID, secret(token)), err)
		s.writeError(w, "Failed to create order", err)
		return
	}
	if err = s.carts.Clear(ctx, token); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] clear cart %s after order %d", reqID, secret(token), order.Id), err)
	}

	s.writeJSON(w, http.StatusOK, createdOrderResponse{Success: true, OrderReference: s.orderReference(order)})
}

func (s *Server) writeCart(w http.ResponseWriter, r *http.Request, cart *entity.Cart, err error) {
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] cart", GetRequestID(r.Context())), err)
		s.writeError(w, "Cart operation failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cartResponse{
		Success:  true,
		Cart:     cart,
		Subtotal: cart.Subtotal().StringFixed(2),
		Count:    cart.Count(),
	})
}

func (s *Server) orderReference(order *entity.Order) entity.OrderReference {
	reference := order.Reference()
	site := strings.TrimRight(s.conf.Commerce.SiteUrl, "/")
	if site != "" {
		reference.CheckoutUrl = fmt.Sprintf("%s/checkout/order-pay/%d/?pay_for_order=true&key=%s", site, order.Id, order.OrderKey)
		reference.OrderUrl = fmt.Sprintf("%s/checkout/order-received/%d/?key=%s", site, order.Id, order.OrderKey)
	}
	return reference
}

func (s *Server) writeError(w http.ResponseWriter, message string, err error) {
	s.writeJSON(w, errorStatus(err), errorResponse{
		Error:   message,
		Details: errorDetails(err),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write response", err)
	}
}

func writeEvent(w io.Writer, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{}`)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func decodeBody(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: decode request body: %v", ErrBadRequest, err)
	}
	return nil
}

// errorStatus maps an error to the response status; backend statuses pass through.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrSignatureMismatch), errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	if status := UpstreamStatus(err); status >= http.StatusBadRequest {
		return status
	}
	return http.StatusInternalServerError
}

func errorDetails(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
