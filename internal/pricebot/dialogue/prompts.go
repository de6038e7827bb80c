package dialogue

import (
	"fmt"
	"strings"

	"github.com/m3rciful/pricebot/core/format"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// TokenSay replays its parameter as if the user had typed it.
const TokenSay = "say_"

const (
	msgFailure  = "Sorry, I encountered an error, please try again"
	msgGreeting = "👋 Hello! Send \"hi\" to get started with pricing inquiries."
	msgStale    = "🤔 That button is no longer active. Send /start to begin again."

	msgHelp = "🏗️ *PriceBot help*\n\n" +
		"• /start - begin a new inquiry or vendor registration\n" +
		"• /sale - record a completed sale\n" +
		"• /help - show this message\n\n" +
		"Vendors can also send rates any time, e.g. \"Cement 350, TMT 48, GST 18%, delivery 50\"."

	msgSaleHint = "❌ I couldn't extract complete sale information from your message.\n\n" +
		"Please provide sale details like:\n" +
		"\"Sold 50 bags cement to ABC Company for 350 per bag in Mumbai\"\n\n" +
		"Or use /sale followed by the details."

	msgSaleCancelled    = "❌ Sale entry cancelled."
	msgSaleUnregistered = "❌ Only registered vendors can record sales. Send /start and choose Vendor to register first."
)

var hints = map[domain.Step]string{
	domain.StepUserType:        "Please reply with:\n1 - if you're a Buyer\n2 - if you're a Vendor",
	domain.StepGetCity:         "📍 Please enter your city name:",
	domain.StepGetMaterial:     "Please select:\n1 - for Cement\n2 - for TMT Bars",
	domain.StepGetBrand:        "🏷️ Please enter a brand name or type \"any\":",
	domain.StepGetQuantity:     "📦 Please enter the quantity, e.g. 50 bags:",
	domain.StepConfirm:         "Please reply \"confirm\" to send your inquiry or \"restart\" to start over.",
	domain.StepVendorName:      "🏢 Please enter your business name:",
	domain.StepVendorCity:      "📍 Please enter the city you supply in:",
	domain.StepVendorMaterials: "Please select:\n1 - Cement\n2 - TMT Bars\n3 - Both",
	domain.StepVendorPhone:     "📞 Please enter a valid phone number, e.g. 9876543210:",
	domain.StepVendorConfirm:   "Please reply \"confirm\" to register or \"restart\" to start over.",
	domain.StepSaleConfirm:     "Reply \"confirm\" to save this sale or \"cancel\" to abort.",
}

func hint(step domain.Step) conversation.Outbound {
	h, ok := hints[step]
	if !ok {
		return conversation.Text(msgGreeting)
	}
	return conversation.WithActions(h, stepActions(step)...)
}

func say(label, text string) conversation.Action {
	return conversation.Action{Label: label, Token: TokenSay + text}
}

func stepActions(step domain.Step) [][]conversation.Action {
	switch step {
	case domain.StepUserType:
		return [][]conversation.Action{{say("1️⃣ Buyer", "1"), say("2️⃣ Vendor", "2")}}
	case domain.StepGetMaterial:
		return [][]conversation.Action{{say("1️⃣ Cement", "1"), say("2️⃣ TMT Bars", "2")}}
	case domain.StepVendorMaterials:
		return [][]conversation.Action{{say("1️⃣ Cement", "1"), say("2️⃣ TMT Bars", "2"), say("3️⃣ Both", "3")}}
	case domain.StepConfirm, domain.StepVendorConfirm:
		return [][]conversation.Action{{say("✅ Confirm", "confirm"), say("🔄 Restart", "restart")}}
	case domain.StepSaleConfirm:
		return [][]conversation.Action{{say("✅ Confirm", "confirm"), say("❌ Cancel", "cancel")}}
	}
	return nil
}

// prompt renders the question asked at the session's current step.
func prompt(s domain.Session) conversation.Outbound {
	var text string
	switch s.Step {
	case domain.StepStart:
		return conversation.Text(msgGreeting)
	case domain.StepUserType:
		text = welcomeText
	case domain.StepGetCity:
		text = "Great! I'll help you find prices in your city.\n\n📍 Which city are you in?\n\nAvailable cities: Guwahati, Mumbai, Delhi\n\nPlease enter your city name:"
	case domain.StepGetMaterial:
		text = fmt.Sprintf("📍 City: %s\n\nWhat are you looking for?\n\n1️⃣ Cement\n2️⃣ TMT Bars\n\nReply with 1 or 2:", format.MD(s.City))
	case domain.StepGetBrand:
		text = fmt.Sprintf("🏷️ Any specific brand preference?\n\nFor %s:\n- Enter brand name (e.g., ACC, Ambuja, UltraTech)\n- Or type \"any\" for any brand", format.MD(s.Material))
	case domain.StepGetQuantity:
		text = "📦 How much quantity do you need?\n\nExamples:\n- 50 bags\n- 2 tons\n- 100 pieces\n\nEnter quantity:"
	case domain.StepConfirm:
		text = fmt.Sprintf("✅ Please confirm your inquiry:\n\n📍 City: %s\n🏗️ Material: %s\nBrand: %s\n📦 Quantity: %s\n\nReply \"confirm\" to send to vendors or \"restart\" to start over:",
			format.MD(s.City), strings.ToUpper(format.MD(s.Material)), format.MD(format.OrDefault(s.Brand, "Any")), format.MD(s.Quantity))
	case domain.StepVendorName:
		text = "👨‍💼 Thank you for your interest in providing quotes!\n\n🏢 What is your business name?"
	case domain.StepVendorCity:
		text = fmt.Sprintf("🏢 Business: %s\n\n📍 Which city do you supply in?", format.MD(s.VendorName))
	case domain.StepVendorMaterials:
		text = "🧱 Which materials do you supply?\n\n1️⃣ Cement\n2️⃣ TMT Bars\n3️⃣ Both\n\nReply with 1, 2 or 3:"
	case domain.StepVendorPhone:
		text = "📞 What is your contact phone number?"
	case domain.StepVendorConfirm:
		text = fmt.Sprintf("✅ Please confirm your registration:\n\n🏢 Business: %s\n📍 City: %s\n🧱 Materials: %s\n📞 Phone: %s\n\nReply \"confirm\" to register or \"restart\" to start over:",
			format.MD(s.VendorName), format.MD(s.VendorCityOrCity()), strings.ToUpper(strings.Join(s.Materials, ", ")), format.MD(s.VendorPhone))
	case domain.StepSaleConfirm:
		text = saleConfirmText(s.PendingSale)
	default:
		return conversation.Text(msgGreeting)
	}
	return conversation.WithActions(text, stepActions(s.Step)...)
}

const welcomeText = "🏗️ Welcome to PriceBot!\n\n" +
	"I help you get instant pricing for cement and TMT bars from verified vendors in your city.\n\n" +
	"Are you a:\n1️⃣ Buyer (looking for prices)\n2️⃣ Vendor (want to provide quotes)\n\nReply with 1 or 2"

const restartText = "🔄 Let's start over!\n\n" +
	"Are you a:\n1️⃣ Buyer (looking for prices)\n2️⃣ Vendor (want to provide quotes)\n\nReply with 1 or 2"

func saleConfirmText(s *domain.Sale) string {
	var b strings.Builder
	b.WriteString("📋 *Sale Entry Detected*\n\n")
	if s != nil {
		line := func(label, v string) {
			if v != "" {
				fmt.Fprintf(&b, "%s %s\n", label, format.MD(v))
			}
		}
		line("📦 *Material:*", strings.ToUpper(s.SalesType))
		line("🏢 *Company:*", s.CementCompany)
		line("📊 *Quantity:*", s.CementQty)
		if s.CementPrice != nil {
			fmt.Fprintf(&b, "💰 *Price:* ₹%s per unit\n", format.Amount(*s.CementPrice))
		}
		line("📍 *Location:*", s.ProjectLocation)
		line("📞 *Contact:*", s.ContactNumber)
		line("🏢 *TMT Company:*", s.TMTCompany)
		line("🔧 *TMT Sizes:*", s.TMTSizes)
		line("📊 *TMT Quantities:*", s.TMTQuantities)
	}
	b.WriteString("\nReply \"confirm\" to save this sale or \"cancel\" to abort.")
	return b.String()
}

func inquirySentText(inq domain.Inquiry) string {
	return fmt.Sprintf("🚀 Your inquiry has been sent!\n\nWe've contacted vendors in %s for %s pricing. You should receive quotes shortly.\n\n📊 Inquiry ID: %s\n\nSend /start for a new inquiry anytime!",
		format.MD(inq.City), format.MD(inq.Material), inq.InquiryID)
}

func noVendorsText(s domain.Session) string {
	return fmt.Sprintf("😔 No vendors are available for %s in %s yet.\n\nSend /start to try another city or material.",
		strings.ToUpper(format.MD(s.Material)), format.MD(s.City))
}

func registeredText(v domain.Vendor) string {
	return fmt.Sprintf("✅ *Registration complete!*\n\n🏢 %s is now registered for %s in %s.\nYou will receive price inquiries from buyers here.\n\n"+
		"💡 Send your standing rates any time, e.g. \"Cement 350, TMT 48, GST 18%%, delivery 50\".",
		format.MD(v.Name), strings.ToUpper(strings.Join(v.Materials, ", ")), format.MD(v.City))
}
