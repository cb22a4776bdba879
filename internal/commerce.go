package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/config"
	"storefront/entity"
)

const (
	ordersPath        = "/wc/v3/orders"
	productsPath      = "/wc/v3/products"
	shippingZonesPath = "/wc/v3/shipping/zones"

	paymentMethod      = "payfast"
	paymentMethodTitle = "PayFast"
)

var (
	htmlTitle = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
	htmlTag   = regexp.MustCompile(`<[^>]*>`)
)

// CommerceClient talks to the WooCommerce REST API.
type CommerceClient struct {
	client *resty.Client
	logger *Logger
}

func newRestClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
}

func NewCommerceClient(conf *config.Config) *CommerceClient {
	client := newRestClient(conf.Commerce.Timeout).
		SetBaseURL(strings.TrimRight(conf.Commerce.ApiUrl, "/")).
		SetHeader("Content-Type", "application/json")
	if conf.Commerce.ConsumerKey != "" && conf.Commerce.ConsumerSecret != "" {
		client.SetBasicAuth(conf.Commerce.ConsumerKey, conf.Commerce.ConsumerSecret)
	}
	return &CommerceClient{
		client: client,
	}
}

func (c *CommerceClient) SetLogger(logger *Logger) {
	c.logger = logger
}

type wooOrderRequest struct {
	PaymentMethod      string                   `json:"payment_method"`
	PaymentMethodTitle string                   `json:"payment_method_title"`
	SetPaid            bool                     `json:"set_paid"`
	Billing            entity.Address           `json:"billing"`
	Shipping           entity.Address           `json:"shipping"`
	LineItems          []entity.LineItemRequest `json:"line_items"`
	CustomerId         int                      `json:"customer_id"`
	Status             string                   `json:"status"`
}

type wooImage struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type wooLineItem struct {
	Id        int       `json:"id"`
	ProductId int       `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Total     string    `json:"total"`
	Image     *wooImage `json:"image"`
}

type wooOrder struct {
	Id                 int            `json:"id"`
	OrderKey           string         `json:"order_key"`
	Status             string         `json:"status"`
	Total              string         `json:"total"`
	Currency           string         `json:"currency"`
	DateCreated        string         `json:"date_created"`
	DatePaid           *string        `json:"date_paid"`
	Billing            entity.Address `json:"billing"`
	Shipping           entity.Address `json:"shipping"`
	LineItems          []wooLineItem  `json:"line_items"`
	PaymentMethod      string         `json:"payment_method"`
	PaymentMethodTitle string         `json:"payment_method_title"`
	TransactionId      string         `json:"transaction_id"`
}

type wooProduct struct {
	Id               int        `json:"id"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	Description      string     `json:"description"`
	ShortDescription string     `json:"short_description"`
	Price            string     `json:"price"`
	RegularPrice     string     `json:"regular_price"`
	Images           []wooImage `json:"images"`
	Categories       []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

type wooZone struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

type wooZoneLocation struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type wooShippingMethod struct {
	InstanceId        int    `json:"instance_id"`
	MethodId          string `json:"method_id"`
	MethodTitle       string `json:"method_title"`
	MethodDescription string `json:"method_description"`
	Enabled           bool   `json:"enabled"`
	Settings          struct {
		Cost *struct {
			Value string `json:"value"`
		} `json:"cost"`
	} `json:"settings"`
}

func (c *CommerceClient) CreateOrder(ctx context.Context, request *entity.CreateOrderRequest) (*entity.Order, error) {
	if request == nil || len(request.LineItems) == 0 {
		return nil, fmt.Errorf("%w: order has no line items", ErrBadRequest)
	}
	body := wooOrderRequest{
		PaymentMethod:      paymentMethod,
		PaymentMethodTitle: paymentMethodTitle,
		SetPaid:            false,
		Billing:            request.Billing,
		Shipping:           request.Shipping,
		LineItems:          request.LineItems,
		CustomerId:         request.CustomerId,
		Status:             entity.OrderStatusPending,
	}

	var order wooOrder
	if err := c.do(ctx, "create order", http.MethodPost, ordersPath, nil, body, &order); err != nil {
		return nil, err
	}
	c.info(fmt.Sprintf("order created: id %d; total %s %s", order.Id, order.Total, order.Currency))
	return order.toEntity(), nil
}

func (c *CommerceClient) GetOrder(ctx context.Context, orderId string) (*entity.Order, error) {
	if _, err := strconv.Atoi(orderId); err != nil {
		return nil, fmt.Errorf("%w: invalid order id: %s", ErrBadRequest, orderId)
	}
	var order wooOrder
	if err := c.do(ctx, "get order", http.MethodGet, ordersPath+"/"+orderId, nil, nil, &order); err != nil {
		return nil, err
	}
	return order.toEntity(), nil
}

// UpdateOrder sends a full-value update, so repeating it is harmless.
func (c *CommerceClient) UpdateOrder(ctx context.Context, orderId string, update *entity.OrderUpdate) error {
	if _, err := strconv.Atoi(orderId); err != nil {
		return fmt.Errorf("%w: invalid order id: %s", ErrBadRequest, orderId)
	}
	return c.do(ctx, "update order", http.MethodPut, ordersPath+"/"+orderId, nil, update, nil)
}

func (c *CommerceClient) Products(ctx context.Context) ([]entity.Product, error) {
	var products []wooProduct
	query := map[string]string{"per_page": "100", "status": "publish"}
	if err := c.do(ctx, "get products", http.MethodGet, productsPath, query, nil, &products); err != nil {
		return nil, err
	}
	result := make([]entity.Product, 0, len(products))
	for i := range products {
		result = append(result, products[i].toEntity())
	}
	return result, nil
}

func (c *CommerceClient) ProductBySlug(ctx context.Context, slug string) (*entity.Product, error) {
	var products []wooProduct
	query := map[string]string{"slug": slug, "status": "publish"}
	if err := c.do(ctx, "get product", http.MethodGet, productsPath, query, nil, &products); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, slug)
	}
	product := products[0].toEntity()
	return &product, nil
}

// ShippingMethods finds the first zone matching the address and returns its enabled methods.
// No matching zone is not an error: the result is simply empty.
func (c *CommerceClient) ShippingMethods(ctx context.Context, request *entity.ShippingRequest) ([]entity.ShippingMethod, error) {
	var zones []wooZone
	if err := c.do(ctx, "get shipping zones", http.MethodGet, shippingZonesPath, nil, nil, &zones); err != nil {
		return nil, err
	}

	var zone *wooZone
	for i := range zones {
		var locations []wooZoneLocation
		path := fmt.Sprintf("%s/%d/locations", shippingZonesPath, zones[i].Id)
		if err := c.do(ctx, "get zone locations", http.MethodGet, path, nil, nil, &locations); err != nil {
			return nil, err
		}
		if zoneMatches(locations, request) {
			zone = &zones[i]
			break
		}
	}
	if zone == nil {
		c.info(fmt.Sprintf("no shipping zone for %s %s %s", request.Country, request.State, request.Postcode))
		return []entity.ShippingMethod{}, nil
	}

	var methods []wooShippingMethod
	path := fmt.Sprintf("%s/%d/methods", shippingZonesPath, zone.Id)
	if err := c.do(ctx, "get zone methods", http.MethodGet, path, nil, nil, &methods); err != nil {
		return nil, err
	}

	result := make([]entity.ShippingMethod, 0, len(methods))
	for _, method := range methods {
		if !method.Enabled {
			continue
		}
		cost := decimal.Zero
		if method.Settings.Cost != nil && method.Settings.Cost.Value != "" {
			if value, err := decimal.NewFromString(method.Settings.Cost.Value); err == nil {
				cost = value
			}
		}
		result = append(result, entity.ShippingMethod{
			Id:          method.MethodId,
			InstanceId:  method.InstanceId,
			Title:       method.MethodTitle,
			Cost:        cost,
			Description: method.MethodDescription,
		})
	}
	return result, nil
}

func zoneMatches(locations []wooZoneLocation, request *entity.ShippingRequest) bool {
	for _, location := range locations {
		switch location.Type {
		case "country":
			if location.Code == request.Country {
				return true
			}
		case "state":
			if location.Code == request.Country+":"+request.State {
				return true
			}
		case "postcode":
			if location.Code == request.Postcode {
				return true
			}
		}
	}
	return false
}

func (c *CommerceClient) do(ctx context.Context, op, method, path string, query map[string]string, body, result interface{}) error {
	request := c.client.R().SetContext(ctx)
	if query != nil {
		request.SetQueryParams(query)
	}
	if body != nil {
		request.SetBody(body)
	}

	response, err := request.Execute(method, path)
	if err != nil {
		return &UpstreamError{Op: op, Detail: err.Error(), Err: err}
	}
	if response.IsError() {
		return &UpstreamError{Op: op, Status: response.StatusCode(), Detail: errorDetail(response.Body())}
	}
	if result == nil {
		return nil
	}
	if err = json.Unmarshal(response.Body(), result); err != nil {
		return &UpstreamError{Op: op, Status: response.StatusCode(), Detail: "decode response", Err: err}
	}
	return nil
}

// errorDetail extracts a readable message from an upstream error body.
// WordPress answers with an HTML page when PHP fails.
func errorDetail(body []byte) string {
	var message struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &message); err == nil && message.Message != "" {
		return message.Message
	}
	if match := htmlTitle.FindSubmatch(body); match != nil {
		return strings.TrimSpace(string(match[1]))
	}
	if len(body) > 0 && body[0] == '<' {
		return "backend returned an HTML error page"
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// UpstreamStatus reports the backend status carried by err, or 0.
func UpstreamStatus(err error) int {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status
	}
	return 0
}

func (c *CommerceClient) info(text string) {
	if c.logger != nil {
		c.logger.Info(text)
	}
}

func (o *wooOrder) toEntity() *entity.Order {
	order := &entity.Order{
		Id:                 o.Id,
		OrderKey:           o.OrderKey,
		Status:             o.Status,
		Total:              o.Total,
		Currency:           o.Currency,
		DateCreated:        o.DateCreated,
		DatePaid:           o.DatePaid,
		Billing:            o.Billing,
		Shipping:           o.Shipping,
		PaymentMethod:      o.PaymentMethod,
		PaymentMethodTitle: o.PaymentMethodTitle,
		TransactionId:      o.TransactionId,
		LineItems:          make([]entity.LineItem, 0, len(o.LineItems)),
	}
	for _, item := range o.LineItems {
		line := entity.LineItem{
			Id:        item.Id,
			ProductId: item.ProductId,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Total:     item.Total,
		}
		if item.Image != nil {
			line.Image = item.Image.Src
		}
		order.LineItems = append(order.LineItems, line)
	}
	return order
}

func (p *wooProduct) toEntity() entity.Product {
	price := p.Price
	if price == "" {
		price = p.RegularPrice
	}
	amount, err := decimal.NewFromString(price)
	if err != nil {
		amount = decimal.Zero
	}

	product := entity.Product{
		Id:          p.Id,
		Title:       p.Name,
		Subtitle:    stripHtml(p.ShortDescription),
		Price:       amount,
		Category:    "Uncategorized",
		Description: stripHtml(p.Description),
		Slug:        p.Slug,
	}
	if product.Subtitle == "" {
		product.Subtitle = p.Name
	}
	if len(p.Categories) > 0 {
		product.Category = p.Categories[0].Name
	}
	if len(p.Images) > 0 {
		product.Image = p.Images[0].Src
	}
	return product
}

func stripHtml(html string) string {
	text := htmlTag.ReplaceAllString(html, "")
	return strings.TrimSpace(strings.ReplaceAll(text, "&nbsp;", " "))
}
