package identity

import (
	"strings"

	"github.com/paperledger/paperledger/internal/model"
)

// categoryLexicons maps each category to keywords matched against the
// normalized vendor name and OCR text. Order matters: the first category with
// a hit wins, so schedule-bound categories come before purchase categories.
var categoryLexicons = []struct {
	category model.Category
	keywords []string
}{
	{model.CategoryRent, []string{"rent", "mortgage", "miete", "hypothek", "lease", "property management", "landlord"}},
	{model.CategoryUtility, []string{"electric", "energy", "power", "natural gas", "erdgas", "gaswerke", "water", "strom", "wasser", "utility", "heating", "waste", "sewage"}},
	{model.CategoryTelecom, []string{"telecom", "telekom", "mobile", "wireless", "broadband", "internet", "vodafone", "cable", "fiber", "phone"}},
	{model.CategoryInsurance, []string{"insurance", "versicherung", "assurance", "premium", "policy", "mutual", "allianz"}},
	{model.CategoryLoan, []string{"loan", "credit", "kredit", "installment", "financing", "leasing", "repayment"}},
	{model.CategorySubscription, []string{"subscription", "membership", "abo", "abonnement", "streaming", "netflix", "spotify", "saas", "monthly plan", "gym", "fitness"}},
	{model.CategoryFuel, []string{"fuel", "petrol", "diesel", "tankstelle", "gas station", "shell", "esso", "aral"}},
	{model.CategoryGrocery, []string{"grocery", "supermarket", "supermarkt", "market", "aldi", "lidl", "rewe", "edeka", "tesco"}},
	{model.CategoryRetail, []string{"retail", "store", "shop", "outlet", "warehouse", "mall"}},
	{model.CategoryReceipt, []string{"receipt", "kassenbon", "pos", "cash register", "quittung"}},
}

// recurringKeywords signal a scheduled billing relationship regardless of
// category.
var recurringKeywords = []string{
	"monthly", "quarterly", "yearly", "annual", "recurring", "subscription",
	"abonnement", "installment", "contract", "membership", "standing order",
	"dauerauftrag", "billing period", "abrechnungszeitraum",
}

// Classify assigns a category from vendor name and optional OCR text using
// keyword lexicons. Name hits take precedence over text hits.
func Classify(name, text string) model.Category {
	normalizedName := Normalize(name)
	if c, ok := matchLexicons(normalizedName); ok {
		return c
	}
	if text != "" {
		if c, ok := matchLexicons(Normalize(text)); ok {
			return c
		}
	}
	return model.CategoryUnknown
}

func matchLexicons(s string) (model.Category, bool) {
	if s == "" {
		return model.CategoryUnknown, false
	}
	for _, lex := range categoryLexicons {
		for _, kw := range lex.keywords {
			if strings.Contains(s, kw) {
				return lex.category, true
			}
		}
	}
	return model.CategoryUnknown, false
}

// HasRecurringKeyword reports whether the vendor name or OCR text carries a
// keyword that signals scheduled billing.
func HasRecurringKeyword(name, text string) bool {
	haystack := Normalize(name) + " " + Normalize(text)
	for _, kw := range recurringKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
