package order

import (
	"strings"

	"github.com/fruitshop/orderdesk/internal/enum"
)

// Order is the backend order record as the console sees it.
type Order struct {
	ID          ID     `json:"id"`
	OrderNumber string `json:"order_number"`
	TotalAmount Amount `json:"total_amount"`

	// Status is canonical; OrderStatus is a legacy mirror some endpoints still send.
	Status      string `json:"status"`
	OrderStatus string `json:"order_status,omitempty"`

	UserID      ID     `json:"user_id,omitempty"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`

	AddressLine     string `json:"address_line,omitempty"`
	SubDistrict     string `json:"sub_district,omitempty"`
	District        string `json:"district,omitempty"`
	Province        string `json:"province,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty"`

	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`

	DeliveryQRCode       string                `json:"delivery_qr_code,omitempty"`
	PaymentSlip          *PaymentSlip          `json:"payment_slip,omitempty"`
	DeliveryConfirmation *DeliveryConfirmation `json:"delivery_confirmation,omitempty"`
	Items                []Item                `json:"items,omitempty"`

	InvoiceID     ID     `json:"invoice_id,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
}

type PaymentSlip struct {
	ImageData   string `json:"image_data"`
	Amount      Amount `json:"amount"`
	PaymentDate string `json:"payment_date"`
}

type DeliveryConfirmation struct {
	DeliveryImage   string `json:"delivery_image,omitempty"`
	DeliveryDate    string `json:"delivery_date,omitempty"`
	DeliveryTime    string `json:"delivery_time,omitempty"`
	SenderName      string `json:"sender_name,omitempty"`
	ReceiverName    string `json:"receiver_name,omitempty"`
	ReceiverPhone   string `json:"receiver_phone,omitempty"`
	ReceiverAddress string `json:"receiver_address,omitempty"`
}

type Item struct {
	ID         ID     `json:"id,omitempty"`
	FruitName  string `json:"fruit_name"`
	FruitImage string `json:"fruit_image,omitempty"`
	Quantity   Amount `json:"quantity"`
	Price      Amount `json:"price"`
	Subtotal   Amount `json:"subtotal"`
}

// EffectiveStatus is the single status resolution used everywhere in the
// console: the legacy order_status wins when present, then status.
func (o Order) EffectiveStatus() string {
	if s := strings.TrimSpace(o.OrderStatus); s != "" {
		return s
	}
	return strings.TrimSpace(o.Status)
}

// DisplayStatus is EffectiveStatus with the selector default for empty records.
func (o Order) DisplayStatus() string {
	if s := o.EffectiveStatus(); s != "" {
		return s
	}
	return enum.OrderStatusPaid
}

// IsDelivering reports whether a QR dispatch is still awaiting the rider.
func (o Order) IsDelivering() bool {
	return o.EffectiveStatus() == enum.OrderStatusDelivering
}

// DisplayName is the customer name shown to riders and on bills.
func (o Order) DisplayName() string {
	if o.Username != "" {
		return o.Username
	}
	return "-"
}

// SlipAmount is the paid amount on the slip, falling back to the order total.
func (o Order) SlipAmount() Amount {
	if o.PaymentSlip != nil && !o.PaymentSlip.Amount.IsZero() {
		return o.PaymentSlip.Amount
	}
	return o.TotalAmount
}

// Matches reports whether query hits the order number, username or phone,
// case-insensitively. An empty query matches everything.
func (o Order) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{o.OrderNumber, o.Username, o.Phone, o.PhoneNumber} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
