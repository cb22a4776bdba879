package entity

import "time"

// PaymentStatusComplete is the gateway value for a settled payment
const PaymentStatusComplete = "COMPLETE"

// Notification is an inbound gateway notification after the signature field was split off.
type Notification struct {
	Fields    PaymentFields
	Signature string
	// Body is the raw form body without the signature pair, in received order
	Body string
}

func (n *Notification) OrderId() string {
	return n.Fields[FieldPaymentId]
}

func (n *Notification) GatewayPaymentId() string {
	return n.Fields[FieldGatewayPaymentId]
}

func (n *Notification) Status() string {
	return n.Fields[FieldPaymentStatus]
}

func (n *Notification) AmountGross() string {
	return n.Fields[FieldAmountGross]
}

func (n *Notification) IsComplete() bool {
	return n.Status() == PaymentStatusComplete
}

// NotificationRecord is the journal entry of an accepted notification.
type NotificationRecord struct {
	GatewayPaymentId string    `json:"pf_payment_id" bson:"pf_payment_id"`
	OrderId          string    `json:"order_id" bson:"order_id"`
	Status           string    `json:"payment_status" bson:"payment_status"`
	AmountGross      string    `json:"amount_gross" bson:"amount_gross"`
	Mode             string    `json:"mode" bson:"mode"`
	Received         int       `json:"received" bson:"received"`
	Reconciled       bool      `json:"reconciled" bson:"reconciled"`
	Error            string    `json:"error,omitempty" bson:"error"`
	TimeReceived     time.Time `json:"time_received" bson:"time_received"`
	TimeReconciled   time.Time `json:"time_reconciled,omitempty" bson:"time_reconciled"`
}

func (n *NotificationRecord) DataType() string {
	return "notification"
}
