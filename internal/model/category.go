// Package model defines the core data types shared across the application:
// documents, recurring templates and instances, detection candidates, bank
// account history, invoice patterns, and anomalies.
package model

// Category classifies a document by the kind of vendor that issued it.
type Category string

const (
	// CategoryUtility covers electricity, gas, water, and waste bills.
	CategoryUtility Category = "utility"
	// CategoryTelecom covers phone, mobile, and internet bills.
	CategoryTelecom Category = "telecom"
	// CategoryRent covers rent and mortgage payments.
	CategoryRent Category = "rent"
	// CategoryInsurance covers insurance premiums.
	CategoryInsurance Category = "insurance"
	// CategorySubscription covers streaming, software, and membership fees.
	CategorySubscription Category = "subscription"
	// CategoryLoan covers loan and credit installments.
	CategoryLoan Category = "loan"
	// CategoryFuel covers fuel station receipts.
	CategoryFuel Category = "fuel"
	// CategoryGrocery covers grocery store receipts.
	CategoryGrocery Category = "grocery"
	// CategoryRetail covers general retail purchases.
	CategoryRetail Category = "retail"
	// CategoryReceipt covers generic point-of-sale receipts.
	CategoryReceipt Category = "receipt"
	// CategoryUnknown is used when no rule matches.
	CategoryUnknown Category = "unknown"
)

// categoryWeights maps each category to its recurring-confidence weight.
// A weight of 1.0 marks categories that routinely bill on a schedule, 0.0
// hard-rejects one-off purchase categories, and 0.5 marks categories that
// need a strong independent signal before a recurrence suggestion is made.
var categoryWeights = map[Category]float64{
	CategoryUtility:      1.0,
	CategoryTelecom:      1.0,
	CategoryRent:         1.0,
	CategoryInsurance:    1.0,
	CategorySubscription: 1.0,
	CategoryLoan:         1.0,
	CategoryFuel:         0.0,
	CategoryGrocery:      0.0,
	CategoryRetail:       0.0,
	CategoryReceipt:      0.0,
	CategoryUnknown:      0.5,
}

// RecurringWeight returns the category's recurring-confidence weight.
func (c Category) RecurringWeight() float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return 0.5
}

// RequiresStrongSignal reports whether suggestions for this category must be
// backed by at least one strong independent signal (stable IBAN, very stable
// amount, or a recurring keyword).
func (c Category) RequiresStrongSignal() bool {
	return c.RecurringWeight() == 0.5
}

// NeverRecurring reports whether the category hard-rejects recurrence.
func (c Category) NeverRecurring() bool {
	return c.RecurringWeight() == 0.0
}

// AllCategories lists every known category.
func AllCategories() []Category {
	return []Category{
		CategoryUtility, CategoryTelecom, CategoryRent, CategoryInsurance,
		CategorySubscription, CategoryLoan, CategoryFuel, CategoryGrocery,
		CategoryRetail, CategoryReceipt, CategoryUnknown,
	}
}
