package extraction

import (
	"fmt"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

func intentPrompt(text string) string {
	return fmt.Sprintf(`Classify this message type: %q

RULES:
- "customer_inquiry": asking for prices or quotes ("I need", "looking for", "require", "want to buy")
- "vendor_rate_update": vendor giving or updating rates ("cement 350", "rate 380", "my rates")
- "vendor_registration": vendor introducing a business ("I supply", "I sell", "dealer", "business")
- "sale_entry": recording a completed sale ("sold", "delivered", "supplied", "transaction")
- "general_chat": greetings, help requests, casual conversation

Return JSON only:
{"messageType": "<one of the types>", "confidence": 0.0-1.0, "reasoning": "<short>"}`, text)
}

func fieldsPrompt(text string, current domain.Step) string {
	return fmt.Sprintf(`Extract info from: %q
The conversation is currently at step %q.

RULES:
- "I supply", "I sell", "vendor", "supplier", "dealer", "store", "business" mean userType "vendor"
- "I need", "I want", "looking for", "require", "buy" mean userType "buyer"
- material is "cement" or "tmt"
- suggestedStep is the next unanswered step, one of: get_city, get_material, get_brand, get_quantity, confirm, vendor_name, vendor_city, vendor_materials, vendor_phone, vendor_confirm

Return JSON only:
{
  "userType": "buyer" | "vendor" | null,
  "city": string | null,
  "material": "cement" | "tmt" | null,
  "quantity": string | null,
  "brand": string | null,
  "vendorName": string | null,
  "vendorPhone": string | null,
  "materials": ["cement","tmt"] | null,
  "confidence": 0.0-1.0,
  "suggestedStep": string
}`, text, current)
}

func standardQuotePrompt(text string) string {
	return fmt.Sprintf(`Extract standard quote information from: %q

RULES:
- cement rates: "cement 350", "cement is 380 per bag"
- TMT rates: "tmt 48", "tmt is 52 per kg"
- GST: "gst 18%%", "18%% gst"
- delivery: "delivery 50", "delivery free" (free is 0)
- action: "same as yesterday" is "same", "update rates" is "update", new numbers are "set"

Return JSON only:
{"cement_rate": number|null, "tmt_rate": number|null, "gst": number|null, "delivery": number|null, "action": "set"|"update"|"same"|null, "confidence": 0.0-1.0}`, text)
}

func salePrompt(text string) string {
	return fmt.Sprintf(`Extract sale information from: %q

RULES:
- sale keywords: "sold", "delivered", "supplied", "transaction", "sale", "deal"
- for cement: company, quantity with unit, price per unit
- for TMT: company, sizes, quantities, prices

Return JSON only:
{
  "sales_type": "cement"|"tmt"|"both"|null,
  "cement_company": string|null, "cement_qty": string|null, "cement_price": number|null,
  "tmt_company": string|null, "tmt_sizes": string|null, "tmt_prices": string|null, "tmt_quantities": string|null,
  "project_owner": string|null, "project_name": string|null, "project_location": string|null,
  "completion_time": number|null, "contact_number": string|null, "sales_rep_name": string|null,
  "confidence": 0.0-1.0
}`, text)
}
