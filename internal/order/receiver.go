package order

import "strings"

// Receiver is the recipient snapshot attached to a delivery confirmation.
// It is always derived from the order and never edited on its own.
type Receiver struct {
	Name    string `json:"receiver_name"`
	Phone   string `json:"receiver_phone"`
	Address string `json:"receiver_address"`
}

// ReceiverSnapshot derives the recipient fields from the order.
func (o Order) ReceiverSnapshot() Receiver {
	return Receiver{
		Name:    o.receiverName(),
		Phone:   firstNonEmpty(o.PhoneNumber, o.Phone),
		Address: o.receiverAddress(),
	}
}

func (o Order) receiverName() string {
	if o.FirstName != "" || o.LastName != "" {
		if name := strings.TrimSpace(o.FirstName + " " + o.LastName); name != "" {
			return name
		}
	}
	return o.Username
}

func (o Order) receiverAddress() string {
	if o.AddressLine == "" {
		return o.ShippingAddress
	}
	parts := make([]string, 0, 5)
	for _, p := range []string{o.AddressLine, o.SubDistrict, o.District, o.Province, o.PostalCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
