package internal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront/config"
	"storefront/entity"
	"storefront/services"
)

const journalTimeout = 5 * time.Second

// Payments signs outbound payment requests and verifies gateway notifications.
// Verification happens before the gateway is answered; the order update that
// follows a confirmed payment runs in the background and only logs its outcome.
type Payments struct {
	gateway       *entity.GatewayConfig
	callbacks     entity.CallbackURLs
	signer        *Signer
	builder       *RequestBuilder
	validator     *GatewayValidator
	commerce      services.Commerce
	database      services.Database
	logger        services.LogHandler
	updateTimeout time.Duration
	tasks         sync.WaitGroup
}

// NewPayments creates the payment service. Missing merchant credentials do not
// fail here; every payment initiation then fails with ErrConfiguration.
func NewPayments(conf *config.Config) *Payments {
	gateway, _ := conf.Gateway()
	p := &Payments{
		gateway:       gateway,
		callbacks:     conf.Callbacks(),
		builder:       NewRequestBuilder(gateway),
		updateTimeout: conf.Commerce.UpdateTimeout,
	}
	if gateway != nil {
		p.signer = NewSigner(gateway.Passphrase)
		p.validator = NewGatewayValidator(gateway.ValidateUrl, conf.PayFast.ValidateTimeout)
	}
	if p.updateTimeout <= 0 {
		p.updateTimeout = 10 * time.Second
	}
	return p
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

func (p *Payments) SetCommerce(commerce services.Commerce) {
	p.commerce = commerce
}

func (p *Payments) SetValidator(validator *GatewayValidator) {
	p.validator = validator
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
	if p.gateway == nil {
		p.logger.Warn("merchant not configured: payments disabled")
	} else {
		p.logger.Info(fmt.Sprintf("service enabled: %s mode; merchant %s", p.gateway.Mode(), secret(p.gateway.MerchantId)))
	}
}

// Initiate builds and signs the payment fields for an order created in the commerce backend.
func (p *Payments) Initiate(ctx context.Context, request *entity.InitiatePaymentRequest) (*entity.PaymentRequest, error) {
	if request == nil {
		return nil, fmt.Errorf("%w: empty payment request", ErrBadRequest)
	}
	if p.gateway == nil {
		return nil, fmt.Errorf("%w: merchant id and merchant key must be set", ErrConfiguration)
	}

	p.logger.Info(fmt.Sprintf("[%s] initiate payment: order %s; amount %s", GetRequestID(ctx), request.OrderId, request.Amount.StringFixed(2)))

	order := &entity.PaymentOrder{
		Id:          request.OrderId,
		Amount:      request.Amount,
		ItemName:    request.ItemName,
		Description: request.ItemDescription,
		CustomInt1:  request.CustomInt1,
		CustomStr1:  request.CustomStr1,
	}
	customer := &entity.Customer{
		FirstName:         request.FirstName,
		LastName:          request.LastName,
		Email:             request.Email,
		CellNumber:        request.CellNumber,
		ConfirmationEmail: request.ConfirmationEmail,
	}

	fields, err := p.builder.Build(order, customer, p.callbacks)
	if err != nil {
		return nil, err
	}

	signature := p.signer.Sign(fields)
	p.logger.Debug(fmt.Sprintf("signature string: %s", maskPassphrase(p.signer.SignatureString(fields))))

	return &entity.PaymentRequest{
		Success:     true,
		PaymentData: fields,
		Signature:   signature,
		ProcessUrl:  p.gateway.ProcessUrl,
	}, nil
}

// Notify processes a gateway notification body.
// A returned error means the notification was rejected and must not be acknowledged.
func (p *Payments) Notify(ctx context.Context, body []byte) error {
	reqID := GetRequestID(ctx)

	if p.gateway == nil {
		return fmt.Errorf("%w: merchant id and merchant key must be set", ErrConfiguration)
	}

	notification, err := ParseNotification(body)
	if err != nil {
		return err
	}
	p.logger.Info(fmt.Sprintf("[%s] notification: order %s; status %s; amount %s; payment %s",
		reqID, notification.OrderId(), notification.Status(), notification.AmountGross(), notification.GatewayPaymentId()))

	if !p.signer.Verify(notification.Fields, notification.Signature) {
		p.logger.Warn(fmt.Sprintf("[%s] invalid signature for order %s", reqID, notification.OrderId()))
		return ErrSignatureMismatch
	}

	if err = p.validator.Validate(ctx, notification.Body); err != nil {
		if p.gateway.Sandbox && errors.Is(err, ErrValidationCall) {
			p.logger.Warn(fmt.Sprintf("[%s] sandbox: validation call failed, accepting notification: %v", reqID, err))
		} else {
			p.logger.Error(fmt.Sprintf("[%s] validation of order %s", reqID, notification.OrderId()), err)
			return err
		}
	}

	if notification.IsComplete() {
		p.dispatch(ctx, notification)
	} else {
		p.logger.Info(fmt.Sprintf("[%s] order %s not updated for status %s", reqID, notification.OrderId(), notification.Status()))
	}
	return nil
}

// Wait blocks until dispatched order updates have finished.
func (p *Payments) Wait() {
	p.tasks.Wait()
}

func (p *Payments) dispatch(ctx context.Context, notification *entity.Notification) {
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		p.reconcileWithRecovery(context.WithoutCancel(ctx), notification)
	}()
}

// reconcileWithRecovery wraps reconcile with its own timeout and panic recovery.
func (p *Payments) reconcileWithRecovery(parentCtx context.Context, notification *entity.Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in reconcile", fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(parentCtx, p.updateTimeout)
	defer cancel()

	p.reconcile(ctx, notification)
}

// reconcile marks the order paid. The update carries absolute values, so a
// duplicate notification leaves the order as it was; the journal additionally
// skips notifications that were already applied.
func (p *Payments) reconcile(ctx context.Context, notification *entity.Notification) {
	reqID := GetRequestID(ctx)
	orderId := notification.OrderId()
	paymentId := notification.GatewayPaymentId()

	if p.commerce == nil {
		p.logger.Warn(fmt.Sprintf("[%s] commerce backend not set, order %s not updated", reqID, orderId))
		return
	}

	if p.isReconciled(ctx, notification) {
		p.logger.Info(fmt.Sprintf("[%s] order %s already updated for payment %s", reqID, orderId, paymentId))
		return
	}

	update := &entity.OrderUpdate{
		Status:        entity.OrderStatusProcessing,
		TransactionId: paymentId,
		SetPaid:       true,
	}
	err := p.commerce.UpdateOrder(ctx, orderId, update)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%v: %w", err, ctx.Err())
		}
		p.logger.Error(fmt.Sprintf("[%s] update order %s", reqID, orderId), err)
	} else {
		p.logger.Info(fmt.Sprintf("[%s] order %s updated: %s; transaction %s", reqID, orderId, update.Status, paymentId))
	}
	p.markReconciled(ctx, paymentId, err)
}

func (p *Payments) isReconciled(ctx context.Context, notification *entity.Notification) bool {
	paymentId := notification.GatewayPaymentId()
	if p.database == nil || paymentId == "" {
		return false
	}

	record, err := p.database.GetNotification(ctx, paymentId)
	if err != nil {
		p.logger.Error(fmt.Sprintf("read notification %s", paymentId), err)
		return false
	}
	if record != nil && record.Reconciled {
		return true
	}
	if record == nil {
		record = &entity.NotificationRecord{
			GatewayPaymentId: paymentId,
			OrderId:          notification.OrderId(),
			Mode:             p.gateway.Mode(),
			TimeReceived:     time.Now(),
		}
	}
	record.Status = notification.Status()
	record.AmountGross = notification.AmountGross()
	record.Received++
	if err := p.database.SaveNotification(ctx, record); err != nil {
		p.logger.Error("save notification", err)
	}
	return false
}

// markReconciled writes the outcome on its own context, the update one may have expired.
func (p *Payments) markReconciled(ctx context.Context, paymentId string, reconcileErr error) {
	if p.database == nil || paymentId == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	text := ""
	if reconcileErr != nil {
		text = reconcileErr.Error()
	}
	if err := p.database.MarkNotificationReconciled(ctx, paymentId, text); err != nil {
		p.logger.Error("mark notification", err)
	}
}

// ParseNotification splits the signature off a form-encoded notification body.
// Body of the result keeps the remaining pairs exactly as received.
func ParseNotification(body []byte) (*entity.Notification, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty notification", ErrBadRequest)
	}

	notification := &entity.Notification{
		Fields: entity.PaymentFields{},
	}
	kept := make([]string, 0, 16)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: decode key %q: %v", ErrBadRequest, rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: decode value of %s: %v", ErrBadRequest, key, err)
		}
		if key == entity.FieldSignature {
			notification.Signature = value
			continue
		}
		kept = append(kept, pair)
		if _, exists := notification.Fields[key]; !exists {
			notification.Fields[key] = value
		}
	}
	notification.Body = strings.Join(kept, "&")

	if len(notification.Fields) == 0 {
		return nil, fmt.Errorf("%w: notification has no fields", ErrBadRequest)
	}
	return notification, nil
}

func maskPassphrase(signatureString string) string {
	index := strings.Index(signatureString, "&"+entity.FieldPassphrase+"=")
	if index < 0 {
		return signatureString
	}
	return signatureString[:index] + "&" + entity.FieldPassphrase + "=***"
}
