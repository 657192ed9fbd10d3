package convo

import (
	"fmt"

	"github.com/mirandol/shoptalk/internal/intent"
)

// turnSignals are the per-turn inputs to the stage transition rules.
type turnSignals struct {
	intent            intent.Type
	slotStreak        int
	resolvedObjection bool
}

// advanceStage applies the funnel rules. Stages only move forward; a turn
// that matches no rule leaves the stage unchanged.
func advanceStage(cur Stage, sig turnSignals, streakTurns int) Stage {
	switch cur {
	case StageGreeting:
		// The first user turn always opens discovery.
		return StageDiscovery
	case StageDiscovery:
		if sig.intent == intent.TypeCompare {
			return StageConsideration
		}
		if streakTurns > 0 && sig.slotStreak >= streakTurns {
			// The user stopped broadening and started narrowing.
			return StageConsideration
		}
	case StageConsideration:
		if sig.intent == intent.TypePurchase || sig.resolvedObjection {
			return StageDecision
		}
	}
	return cur
}

// slotKey fingerprints the category and budget slots so consecutive
// unchanged turns can be counted.
func slotKey(category string, budget *float64) string {
	if budget == nil {
		return category
	}
	return fmt.Sprintf("%s|%.2f", category, *budget)
}

// updateContext folds one turn's outcome into the conversation context and
// reports the signals the stage rules need.
func updateContext(cctx *Context, desc intent.Descriptor, category string, referenced []string) turnSignals {
	key := slotKey(category, desc.Budget)
	prevKey := slotKey(cctx.CategoryHint, cctx.BudgetHint)
	prevProducts := cctx.LastProductIDs
	if key != "" && key == prevKey {
		cctx.SlotStreak++
	} else {
		cctx.SlotStreak = 1
	}

	resolved := false
	if cctx.LastIntent == string(intent.TypeObjection) && desc.Type != intent.TypeObjection {
		resolved = overlaps(referenced, cctx.ObjectionProductIDs)
	}

	cctx.CategoryHint = category
	cctx.BudgetHint = desc.Budget
	cctx.LastIntent = string(desc.Type)
	cctx.LastProductIDs = referenced
	if desc.Type == intent.TypeObjection {
		// An objection with no named products refers to what was just shown.
		ids := desc.ProductIDs
		if len(ids) == 0 {
			ids = prevProducts
		}
		cctx.ObjectionProductIDs = ids
	} else if resolved {
		cctx.ObjectionProductIDs = nil
	}

	return turnSignals{
		intent:            desc.Type,
		slotStreak:        cctx.SlotStreak,
		resolvedObjection: resolved,
	}
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// appendDiscussed adds new product ids preserving first-seen order.
func appendDiscussed(discussed, ids []string) []string {
	seen := make(map[string]bool, len(discussed))
	for _, id := range discussed {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			discussed = append(discussed, id)
			seen[id] = true
		}
	}
	return discussed
}
