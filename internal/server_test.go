package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/config"
	"storefront/entity"
)

type fakePayments struct {
	initiate  *entity.PaymentRequest
	err       error
	notified  [][]byte
	initiated []*entity.InitiatePaymentRequest
}

func (f *fakePayments) Initiate(_ context.Context, request *entity.InitiatePaymentRequest) (*entity.PaymentRequest, error) {
	f.initiated = append(f.initiated, request)
	if f.err != nil {
		return nil, f.err
	}
	return f.initiate, nil
}

func (f *fakePayments) Notify(_ context.Context, body []byte) error {
	f.notified = append(f.notified, body)
	return f.err
}

func newTestServer(payments *fakePayments, commerce *fakeCommerce) *Server {
	conf := &config.Config{}
	conf.Commerce.SiteUrl = "https://backend.example/"
	server := NewServer(conf)
	server.SetLogger(NewLogger("server", true, nil))
	server.SetPaymentsService(payments)
	server.SetCommerce(commerce)
	server.SetCartStore(NewCartStore(NewMemoryCarts()))
	return server
}

func serve(server *Server, method, path, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body), recorder.Body.String())
	return body
}

func TestNotifyResponses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"accepted", nil, http.StatusOK},
		{"bad signature", ErrSignatureMismatch, http.StatusBadRequest},
		{"not valid", fmt.Errorf("%w: gateway answered %q", ErrValidationFailed, "INVALID"), http.StatusBadRequest},
		{"validation call", fmt.Errorf("%w: status 502", ErrValidationCall), http.StatusInternalServerError},
		{"malformed", fmt.Errorf("%w: empty notification", ErrBadRequest), http.StatusBadRequest},
		{"not configured", ErrConfiguration, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &fakePayments{err: tt.err}
			server := newTestServer(payments, &fakeCommerce{})

			recorder := serve(server, http.MethodPost, paymentNotify, "m_payment_id=42&signature=abc")

			assert.Equal(t, tt.status, recorder.Code)
			require.Len(t, payments.notified, 1)
			assert.Equal(t, "m_payment_id=42&signature=abc", string(payments.notified[0]))
		})
	}
}

func TestRequestIdHeader(t *testing.T) {
	server := newTestServer(&fakePayments{}, &fakeCommerce{})

	recorder := serve(server, http.MethodPost, paymentNotify, "a=b")
	assert.Len(t, recorder.Header().Get(requestIDHeader), 36)

	request := httptest.NewRequest(http.MethodPost, paymentNotify, strings.NewReader("a=b"))
	request.Header.Set(requestIDHeader, "gateway-7")
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	assert.Equal(t, "gateway-7", recorder.Header().Get(requestIDHeader))
}

func TestInitiateResponse(t *testing.T) {
	payments := &fakePayments{initiate: &entity.PaymentRequest{
		Success:     true,
		PaymentData: entity.PaymentFields{entity.FieldMerchantId: "10000100", entity.FieldAmount: "1500.00"},
		Signature:   "0123456789abcdef0123456789abcdef",
		ProcessUrl:  "https://sandbox.payfast.co.za/eng/process",
	}}
	server := newTestServer(payments, &fakeCommerce{})

	recorder := serve(server, http.MethodPost, paymentInitiate, `{"orderId":"1234","amount":"1500","itemName":"Order #1234","firstName":"Jane","lastName":"Doe","email":"jane@example.com"}`)

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	body := decodeResponse(t, recorder)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://sandbox.payfast.co.za/eng/process", body["processUrl"])
	assert.Equal(t, "1500.00", body["paymentData"].(map[string]interface{})["amount"])

	require.Len(t, payments.initiated, 1)
	assert.True(t, payments.initiated[0].Amount.Equal(decimal.NewFromInt(1500)))
}

func TestInitiateErrors(t *testing.T) {
	server := newTestServer(&fakePayments{err: fmt.Errorf("%w: merchant id and merchant key must be set", ErrConfiguration)}, &fakeCommerce{})

	recorder := serve(server, http.MethodPost, paymentInitiate, `{"orderId":"1","amount":"10"}`)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	body := decodeResponse(t, recorder)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "PayFast configuration missing", body["error"])
	assert.Contains(t, body["details"], "merchant id and merchant key must be set")

	recorder = serve(server, http.MethodPost, paymentInitiate, `{"orderId":`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestProcessPageAutoSubmits(t *testing.T) {
	payments := &fakePayments{initiate: &entity.PaymentRequest{
		Success: true,
		PaymentData: entity.PaymentFields{
			entity.FieldMerchantId: "10000100",
			entity.FieldItemName:   `Serum "XL" & Oil`,
			entity.FieldAmount:     "20.00",
		},
		Signature:  "feedface",
		ProcessUrl: "https://sandbox.payfast.co.za/eng/process",
	}}
	server := newTestServer(payments, &fakeCommerce{})

	recorder := serve(server, http.MethodPost, paymentProcess, `{"orderId":"7","amount":"20"}`)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Header().Get("Content-Type"), "text/html")
	page := recorder.Body.String()
	assert.Contains(t, page, `action="https://sandbox.payfast.co.za/eng/process"`)
	assert.Contains(t, page, `name="merchant_id" value="10000100"`)
	assert.Contains(t, page, `name="item_name" value="Serum &#34;XL&#34; &amp; Oil"`)
	assert.Contains(t, page, `name="signature" value="feedface"`)
	assert.Less(t, strings.Index(page, "merchant_id"), strings.Index(page, "amount"))
}

func TestOrderRoutes(t *testing.T) {
	commerce := &fakeCommerce{orders: map[string]*entity.Order{
		"42": {Id: 42, OrderKey: "wc_order_abc", Status: entity.OrderStatusPending, Total: "1500.00", Currency: "ZAR"},
	}}
	server := newTestServer(&fakePayments{}, commerce)

	recorder := serve(server, http.MethodGet, "/api/orders/42", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeResponse(t, recorder)
	assert.Equal(t, "pending", body["order"].(map[string]interface{})["status"])

	recorder = serve(server, http.MethodGet, "/api/orders/43", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	body = decodeResponse(t, recorder)
	assert.Equal(t, "Failed to fetch order", body["error"])
	assert.Equal(t, "Invalid ID.", body["details"])

	recorder = serve(server, http.MethodPost, createOrder, `{"billing":{"email":"jane@example.com"},"line_items":[{"product_id":11,"quantity":2}]}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	body = decodeResponse(t, recorder)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(101), body["order_id"])
	assert.Equal(t, "https://backend.example/checkout/order-pay/101/?pay_for_order=true&key=wc_order_abc", body["checkout_url"])
}

func TestProductRoutes(t *testing.T) {
	commerce := &fakeCommerce{products: []entity.Product{
		{Id: 11, Title: "Botaani Serum", Slug: "botaani-serum", Price: decimal.RequireFromString("249.99")},
	}}
	server := newTestServer(&fakePayments{}, commerce)

	recorder := serve(server, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var products []entity.Product
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &products))
	assert.Len(t, products, 1)

	recorder = serve(server, http.MethodGet, "/api/products?slug=botaani-serum", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Botaani Serum", decodeResponse(t, recorder)["title"])

	recorder = serve(server, http.MethodGet, "/api/products?slug=unknown", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "Product not found", decodeResponse(t, recorder)["error"])
}

func TestShippingRoute(t *testing.T) {
	commerce := &fakeCommerce{methods: []entity.ShippingMethod{{Id: "flat_rate", Title: "Courier", Cost: decimal.RequireFromString("95.5")}}}
	server := newTestServer(&fakePayments{}, commerce)

	recorder := serve(server, http.MethodPost, shippingRates, `{"country":"ZA","state":"GP","items":[]}`)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeResponse(t, recorder)
	methods := body["methods"].([]interface{})
	require.Len(t, methods, 1)
	assert.Equal(t, "95.5", methods[0].(map[string]interface{})["cost"])
}

func TestCartRoutes(t *testing.T) {
	commerce := &fakeCommerce{}
	server := newTestServer(&fakePayments{}, commerce)

	recorder := serve(server, http.MethodPost, "/api/cart/tok1/items", `{"product_id":11,"name":"Botaani Serum","price":"249.99","quantity":1}`)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = serve(server, http.MethodPut, "/api/cart/tok1/items/11", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeResponse(t, recorder)
	assert.Equal(t, "749.97", body["subtotal"])
	assert.Equal(t, float64(3), body["count"])

	recorder = serve(server, http.MethodPut, "/api/cart/tok1/items/12", `{"quantity":3}`)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = serve(server, http.MethodPut, "/api/cart/tok1/items/abc", `{"quantity":3}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = serve(server, http.MethodPost, "/api/cart/tok1/checkout", `{"billing":{"email":"jane@example.com"}}`)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	require.Len(t, commerce.created, 1)
	assert.Equal(t, []entity.LineItemRequest{{ProductId: 11, Quantity: 3}}, commerce.created[0].LineItems)

	recorder = serve(server, http.MethodGet, "/api/cart/tok1", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, float64(0), decodeResponse(t, recorder)["count"])

	recorder = serve(server, http.MethodPost, "/api/cart/tok1/checkout", `{}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Cart is empty", decodeResponse(t, recorder)["error"])
}

func TestWatchOrderStreamsUntilSettled(t *testing.T) {
	var calls int32
	commerce := &fakeCommerce{}
	server := newTestServer(&fakePayments{}, commerce)
	poller := NewOrderPoller(statusSequence(&calls, entity.OrderStatusPending, "", entity.OrderStatusProcessing))
	poller.SetSchedule(10*time.Millisecond, time.Second)
	server.SetPoller(poller)

	recorder := serve(server, http.MethodGet, "/api/orders/42/watch", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))
	stream := recorder.Body.String()
	assert.Equal(t, 2, strings.Count(stream, "event: order\n"))
	assert.Equal(t, 1, strings.Count(stream, "event: error\n"))
	assert.Contains(t, stream, "event: done\ndata: {\"outcome\":\"settled\",\"status\":\"processing\"}\n\n")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWatchOrderRejectsInvalidId(t *testing.T) {
	server := newTestServer(&fakePayments{}, &fakeCommerce{})

	recorder := serve(server, http.MethodGet, "/api/orders/abc/watch", "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", ErrBadRequest), http.StatusBadRequest},
		{ErrSignatureMismatch, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{&UpstreamError{Op: "get order", Status: http.StatusUnauthorized}, http.StatusUnauthorized},
		{&UpstreamError{Op: "get order", Detail: "dial tcp: refused", Err: errors.New("refused")}, http.StatusInternalServerError},
		{ErrConfiguration, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorStatus(tt.err))
		})
	}
}
