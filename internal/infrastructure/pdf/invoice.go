// Package pdf renders order invoices with gofpdf.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

const (
	dateLayout = "2006-01-02 15:04 MST"
	qrSize     = 256
	qrImage    = "invoice-qr"
)

type InvoiceRenderer struct {
	shop     string
	currency string
}

type Option func(*InvoiceRenderer)

func WithShopName(name string) Option {
	return func(r *InvoiceRenderer) { r.shop = name }
}

func WithCurrency(currency string) Option {
	return func(r *InvoiceRenderer) { r.currency = currency }
}

func NewInvoiceRenderer(opts ...Option) *InvoiceRenderer {
	r := &InvoiceRenderer{shop: "Minishop", currency: "SGD"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render lays out an A4 invoice: header, order facts, one row per line and the total. The
// invoice number is also printed as a QR code in the top right corner.
func (r *InvoiceRenderer) Render(o *order.Order) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("pdf: nil order")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+o.InvoiceNumber, true)
	pdf.SetCreator(r.shop, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, tr(r.shop+" Invoice"))
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 11)
	facts := [][2]string{
		{"Invoice number", o.InvoiceNumber},
		{"Order", fmt.Sprintf("#%d", o.ID)},
		{"Date", o.OrderDate.UTC().Format(dateLayout)},
		{"Status", string(o.Status)},
		{"Payment method", string(o.PaymentMethod)},
	}
	if o.PaidAt != nil {
		facts = append(facts, [2]string{"Paid at", o.PaidAt.UTC().Format(dateLayout)})
	}
	if o.Refund.Status != "" && o.Refund.Status != order.RefundNone {
		facts = append(facts, [2]string{"Refund", string(o.Refund.Status)})
	}
	for _, f := range facts {
		pdf.CellFormat(40, 7, f[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(f[1]), "", 1, "L", false, 0, "")
	}

	if o.InvoiceNumber != "" {
		png, err := qrcode.Encode(o.InvoiceNumber, qrcode.Medium, qrSize)
		if err != nil {
			return nil, fmt.Errorf("pdf: invoice qr: %w", err)
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(qrImage, opts, bytes.NewReader(png))
		pdf.ImageOptions(qrImage, 160, 20, 35, 35, false, opts, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(90, 8, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Subtotal", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, l := range o.Lines {
		name := l.ProductName
		if name == "" {
			name = fmt.Sprintf("Product %d", l.ProductID)
		}
		pdf.CellFormat(90, 8, tr(name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", l.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, l.PricePerUnit.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, l.Total().StringFixed(2), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(145, 9, "Total ("+r.currency+")", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 9, o.TotalAmount.StringFixed(2), "1", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: output: %w", err)
	}
	return buf.Bytes(), nil
}
