package convo

import (
	"fmt"
	"strings"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/genai"
	"github.com/mirandol/shoptalk/internal/profile"
)

const synthesisSystemPrompt = `You are a friendly, knowledgeable sales assistant for an online electronics store.
Your goal is to help the customer find the right product, not to push the most expensive one.

Rules:
- Only mention products from the "Available products" list below. Never invent products.
- If the list is empty, ask one clarifying question instead of recommending anything.
- Respect the customer's budget when one is stated.
- Reference products by name and price, keep replies to a few sentences.
- Match your tone to the conversation stage: explore options during discovery, weigh trade-offs during consideration, be concrete and reassuring near a decision.`

const greetingSystemPrompt = `You are a friendly sales assistant for an online electronics store greeting a returning customer.
Write one short welcome message. If the customer's preferences are listed, reference them naturally. Do not list products.`

// synthesisRequest assembles the generation request for one turn: the system
// prompt plus the turn context, and the trailing history window as messages.
func synthesisRequest(history []Message, products []catalog.Product, prof profile.Profile, stage Stage) genai.ReplyRequest {
	var b strings.Builder
	b.WriteString(synthesisSystemPrompt)
	fmt.Fprintf(&b, "\n\nConversation stage: %s\n", stage)

	if prof.HasBudget() {
		fmt.Fprintf(&b, "Customer budget: $%.0f-$%.0f\n", prof.BudgetMin, prof.BudgetMax)
	}
	if len(prof.PreferredCategories) > 0 {
		fmt.Fprintf(&b, "Customer prefers: %s\n", strings.Join(prof.PreferredCategories, ", "))
	}

	if len(products) == 0 {
		b.WriteString("\nAvailable products: none matched the customer's request. Ask a clarifying question.\n")
	} else {
		b.WriteString("\nAvailable products:\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s (%s, $%.2f, rating %.1f", p.Name, p.Brand, p.Price, p.Rating)
			if len(p.Features) > 0 {
				fmt.Fprintf(&b, ", %s", strings.Join(p.Features, ", "))
			}
			b.WriteString(")\n")
		}
	}

	return genai.ReplyRequest{
		System:   b.String(),
		Messages: toGenMessages(history),
	}
}

func greetingInput(prof profile.Profile) string {
	var b strings.Builder
	b.WriteString("A customer just opened a chat.")
	if prof.HasBudget() {
		fmt.Fprintf(&b, " Their budget is $%.0f-$%.0f.", prof.BudgetMin, prof.BudgetMax)
	}
	if len(prof.PreferredCategories) > 0 {
		fmt.Fprintf(&b, " They are interested in %s.", strings.Join(prof.PreferredCategories, ", "))
	}
	return b.String()
}

// staticGreeting is the fallback when the generation service cannot produce
// a greeting; starting a conversation must not depend on it.
func staticGreeting(prof profile.Profile) string {
	if len(prof.PreferredCategories) > 0 {
		return fmt.Sprintf("Welcome back! Looking for something in %s today? Tell me what you need and I'll find some options.",
			strings.Join(prof.PreferredCategories, " or "))
	}
	return "Hi! I'm your shopping assistant. Tell me what you're looking for and I'll help you find it."
}

// toGenMessages maps the persisted history window onto the generation wire
// roles.
func toGenMessages(history []Message) []genai.Message {
	out := make([]genai.Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		out = append(out, genai.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func lastMessages(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
