package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceNumberer produces invoice numbers. Uniqueness is enforced by the store; a collision
// makes the commit retry with a fresh number.
type InvoiceNumberer interface {
	Next(at time.Time) string
}

type timestampInvoiceNumbers struct{}

// Next returns "INV-<yyyymmddhhmmss>-<6 random hex>" so two commits in the same second
// rarely collide.
func (timestampInvoiceNumbers) Next(at time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return "INV-" + at.UTC().Format("20060102150405") + "-" + random
}
