package order

// Invoice is the customer-facing bill generated for a paid order.
type Invoice struct {
	ID                 ID     `json:"id"`
	InvoiceNumber      string `json:"invoice_number"`
	OrderID            ID     `json:"order_id,omitempty"`
	OrderNumber        string `json:"order_number"`
	Status             string `json:"status,omitempty"`
	PaymentMethod      string `json:"payment_method,omitempty"`
	Subtotal           Amount `json:"subtotal"`
	TotalAmount        Amount `json:"total_amount"`
	ShippingAddress    string `json:"shipping_address,omitempty"`
	ShippingCity       string `json:"shipping_city,omitempty"`
	ShippingPostalCode string `json:"shipping_postal_code,omitempty"`
	ShippingCountry    string `json:"shipping_country,omitempty"`
	Items              []Item `json:"items,omitempty"`
	Notes              string `json:"notes,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// PDFFilename is the download name used for the invoice PDF.
func (inv Invoice) PDFFilename() string {
	return PDFFilename(inv.InvoiceNumber)
}

// PDFFilename names an invoice PDF; unknown numbers fall back to "download".
func PDFFilename(invoiceNumber string) string {
	if invoiceNumber == "" {
		invoiceNumber = "download"
	}
	return "invoice-" + invoiceNumber + ".pdf"
}

// InvoiceRef is the id used to download an order's invoice: the linked
// invoice when known, else the order id itself.
func (o Order) InvoiceRef() ID {
	if o.InvoiceID != "" {
		return o.InvoiceID
	}
	return o.ID
}
