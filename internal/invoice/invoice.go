// Package invoice renders order invoices as PDF.
package invoice

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-pdf/fpdf"

	"github.com/xenking/outlet-commerce/internal/domain/notification"
	"github.com/xenking/outlet-commerce/internal/domain/order"
)

var _ notification.InvoiceRenderer = (*Renderer)(nil)

const (
	pageMargin = 15.0
	lineHeight = 7.0
)

// Renderer renders A4 invoices with the built-in core fonts.
type Renderer struct {
	// Shop is printed in the invoice header.
	Shop string
}

// New returns a Renderer for the named shop.
func New(shop string) *Renderer {
	return &Renderer{Shop: shop}
}

// Render implements notification.InvoiceRenderer.
func (r *Renderer) Render(o order.Order) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetTitle("Invoice "+o.Number, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(r.Shop), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, lineHeight, tr("Invoice for order "+o.Number), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, "Date: "+o.CreatedAt.Format("02 Jan 2006"), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, lineHeight, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, v := range []string{o.CustomerName(), o.Email, o.Phone, address(o)} {
		if v == "" {
			continue
		}
		pdf.CellFormat(0, lineHeight, tr(v), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{90, 25, 30, 35}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range []string{"Product", "Qty", "Unit price", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], lineHeight, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 11)
	for _, l := range o.Lines {
		pdf.CellFormat(widths[0], lineHeight, tr(l.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], lineHeight, strconv.Itoa(l.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], lineHeight, l.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], lineHeight, l.LineTotal.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	labelWidth := widths[0] + widths[1] + widths[2]
	totals := []struct {
		label string
		value string
	}{
		{"Subtotal", o.Subtotal.StringFixed(2)},
		{discountLabel(o), "-" + o.Discount.StringFixed(2)},
		{"Delivery", o.DeliveryCharge.StringFixed(2)},
		{fmt.Sprintf("VAT %s%% (included)", o.VATRate.String()), o.VAT.StringFixed(2)},
	}
	for _, t := range totals {
		pdf.CellFormat(labelWidth, lineHeight, tr(t.label), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], lineHeight, t.value, "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(labelWidth, lineHeight, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], lineHeight, o.Total.StringFixed(2), "T", 1, "R", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, lineHeight, tr("Payment: "+string(o.PaymentMethod)), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "write pdf")
	}
	return buf.Bytes(), nil
}

func discountLabel(o order.Order) string {
	if o.CouponCode != "" {
		return "Discount (" + o.CouponCode + ")"
	}
	return "Discount"
}

func address(o order.Order) string {
	s := o.DeliveryAddress
	for _, part := range []string{o.Area, o.City} {
		if part == "" {
			continue
		}
		if s != "" {
			s += ", "
		}
		s += part
	}
	return s
}
