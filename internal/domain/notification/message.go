// Package notification delivers order notifications (SMS, invoice email and
// order events) in the background after an order change is committed.
package notification

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/xenking/outlet-commerce/internal/domain/order"
)

// statusText is the Bengali rendering of each order status used in SMS.
var statusText = map[order.Status]string{
	order.StatusReceived:   "গ্রহণ করা হয়েছে",
	order.StatusConfirmed:  "নিশ্চিত করা হয়েছে",
	order.StatusDispatched: "প্রেরিত করা হয়েছে",
	order.StatusDelivered:  "সরবরাহ করা হয়েছে",
	order.StatusOnHold:     "স্থগিত রাখা হয়েছে",
	order.StatusCancelled:  "বাতিল করা হয়েছে",
	order.StatusSpammed:    "স্প্যাম হিসাবে চিহ্নিত করা হয়েছে",
}

// StatusText returns the localized status, or the status itself if unknown.
func StatusText(s order.Status) string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return string(s)
}

// SMSText renders the customer SMS for the order's current status.
func SMSText(o order.Order) string {
	status := StatusText(o.Status)
	return fmt.Sprintf("সম্মানিত %s,\nআপনার অর্ডার (%s) %s হয়েছে এই বিস্তারিতে:\n%s।\nমোট মূল্য: %s, অফার মূল্য: %s।\nঅর্ডার অবস্থা: %s",
		o.CustomerName(), o.Number, status, productDetails(o.Lines),
		o.Total.String(), o.Discount.String(), status,
	)
}

func productDetails(lines []order.Line) string {
	if len(lines) == 0 {
		return "No products available"
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprintf("%s (%d x %s)", l.Name, l.Quantity, l.UnitPrice.String())
	}
	return strings.Join(parts, ", ")
}

// InvoiceSubject is the subject of the invoice email.
func InvoiceSubject(o order.Order) string {
	return "Your Invoice for Order " + o.Number
}

// InvoiceBody is the HTML body of the invoice email.
func InvoiceBody(o order.Order) string {
	return fmt.Sprintf("<p>Thank you for your order! Your order ID is %s. Please find the invoice attached.</p>",
		html.EscapeString(o.Number))
}

// InvoiceFilename is the attachment name of the invoice PDF.
func InvoiceFilename(o order.Order) string {
	return "invoice-" + o.Number + ".pdf"
}

// Attachment is a file attached to an email.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Email is an outgoing email.
type Email struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

// EmailSender delivers email.
type EmailSender interface {
	SendEmail(ctx context.Context, e Email) error
}

// InvoiceRenderer renders an order invoice as PDF bytes.
type InvoiceRenderer interface {
	Render(o order.Order) ([]byte, error)
}

// EventPublisher publishes order change events.
type EventPublisher interface {
	PublishOrder(ctx context.Context, o order.Order) error
}
