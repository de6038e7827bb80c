package fanout

import (
	"fmt"
	"strings"

	"github.com/m3rciful/pricebot/core/format"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// quickQuotePrefix starts the guided quote wizard for an inquiry.
const quickQuotePrefix = "quote_"

// RenderTemplate fills the rate-request placeholders.
func RenderTemplate(tmpl string, v domain.Vendor, inq domain.Inquiry) string {
	r := strings.NewReplacer(
		"[Vendor Name]", v.Name,
		"[Material]", strings.ToUpper(inq.Material),
		"[City]", inq.City,
		"[Quantity]", format.OrDefault(inq.Quantity, "Not specified"),
		"[Brand]", format.OrDefault(inq.Brand, "Any"),
		"[Inquiry ID]", inq.InquiryID,
	)
	return r.Replace(tmpl)
}

// VendorMessage is the rate request sent to one vendor, with a quick quote action.
func VendorMessage(tmpl string, v domain.Vendor, inq domain.Inquiry) conversation.Outbound {
	var b strings.Builder
	b.WriteString("🔔 *New Price Inquiry*\n\n")
	b.WriteString(format.MD(RenderTemplate(tmpl, v, inq)))
	b.WriteString("\n\n🚀 *Quick Options:*\n")
	b.WriteString("• Click button below for instant quote\n")
	b.WriteString("• Or reply with traditional format:\n\n")
	b.WriteString("*RATE: [Price] per [Unit]*\n")
	b.WriteString("*GST: [Percentage]%*\n")
	b.WriteString("*DELIVERY: [Charges if any]*\n\n")
	fmt.Fprintf(&b, "Inquiry ID: %s", inq.InquiryID)
	return conversation.WithActions(b.String(),
		[]conversation.Action{{Label: "📝 Quick Quote!", Token: quickQuotePrefix + inq.InquiryID}},
	)
}

// FallbackMessage aggregates confirmed standing quotes for the buyer.
func FallbackMessage(quotes []domain.StandardQuote) conversation.Outbound {
	var b strings.Builder
	b.WriteString("🤖 *Auto-Generated Quotes:*\n\n")
	for i, q := range quotes {
		fmt.Fprintf(&b, "*Quote %d:*\n", i+1)
		fmt.Fprintf(&b, "💰 Cement: ₹%s/bag\n", format.Amount(q.Cement))
		fmt.Fprintf(&b, "🔩 TMT: ₹%s/kg\n", format.Amount(q.TMT))
		fmt.Fprintf(&b, "📊 GST: %s%%\n", format.Amount(q.GST))
		fmt.Fprintf(&b, "🚚 Delivery: %s\n\n", format.Delivery(q.Delivery))
	}
	return conversation.Text(strings.TrimRight(b.String(), "\n"))
}
