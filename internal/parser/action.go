package parser

import (
	"regexp"
	"strings"

	"github.com/nao1215/dataroma/internal/model"
)

// actionPercentPattern finds the percentage inside "Add 12.34%".
var actionPercentPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%`)

// ClassifyAction maps free-form action text to an action type.
// Checks run in a fixed order because one string can match several rules
// ("Sold out, new buy" is a Sell):
//
//	"sold all", "sold out", "exit"  -> Sell
//	"new", "buy"                    -> Buy
//	"add", leading "+"              -> Add
//	"reduce", leading "-"           -> Reduce
//	"sell", "sold"                  -> Sell
//	anything else                   -> Hold
//
// Matching is case-insensitive.
func ClassifyAction(text string) model.ActionType {
	s := strings.ToLower(normalizeText(text))

	switch {
	case s == "":
		return model.ActionHold
	case containsAny(s, "sold all", "sold out", "exit"):
		return model.ActionSell
	case containsAny(s, "new", "buy"):
		return model.ActionBuy
	case strings.Contains(s, "add") || strings.HasPrefix(s, "+"):
		return model.ActionAdd
	case strings.Contains(s, "reduce") || strings.HasPrefix(s, "-"):
		return model.ActionReduce
	case containsAny(s, "sell", "sold"):
		return model.ActionSell
	default:
		return model.ActionHold
	}
}

// PercentFromAction returns the percentage embedded in an action string,
// or 0 if there is none.
func PercentFromAction(text string) float64 {
	m := actionPercentPattern.FindStringSubmatch(normalizeText(text))
	if m == nil {
		return 0
	}
	return ParsePercent(m[1])
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
