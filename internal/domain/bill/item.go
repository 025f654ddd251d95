package bill

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/errs"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/money"
)

// Category classifies an item for discount eligibility.
type Category string

// Known categories.
const (
	CategoryGrocery     Category = "GROCERY"
	CategoryElectronics Category = "ELECTRONICS"
	CategoryClothing    Category = "CLOTHING"
	CategoryHomeGoods   Category = "HOME_GOODS"
	CategoryOther       Category = "OTHER"
)

// categories lists every category in declaration order.
var categories = []Category{
	CategoryGrocery,
	CategoryElectronics,
	CategoryClothing,
	CategoryHomeGoods,
	CategoryOther,
}

var percentageEligible = map[Category]bool{
	CategoryGrocery:     false,
	CategoryElectronics: true,
	CategoryClothing:    true,
	CategoryHomeGoods:   true,
	CategoryOther:       true,
}

// Categories returns all known categories.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := percentageEligible[c]
	return ok
}

// PercentageEligible reports whether items of this category receive the
// customer's percentage discount.
func (c Category) PercentageEligible() bool {
	return percentageEligible[c]
}

// ParseCategory parses a category token, ignoring case and surrounding spaces.
func ParseCategory(s string) (Category, error) {
	if strings.TrimSpace(s) == "" {
		return "", errs.Validation("category", "category is required")
	}
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		names := make([]string, len(categories))
		for i, v := range categories {
			names[i] = string(v)
		}
		return "", errs.Validation("category",
			"invalid category '"+s+"'. Valid categories are: "+strings.Join(names, ", "))
	}
	return c, nil
}

// Item is an immutable bill line.
type Item struct {
	name      string
	category  Category
	unitPrice money.Money
	quantity  int
	total     money.Money
}

// NewItem validates and returns an Item.
func NewItem(name string, category Category, unitPrice money.Money, quantity int) (Item, error) {
	if strings.TrimSpace(name) == "" {
		return Item{}, errs.Validation("name", "item name cannot be blank")
	}
	if !category.Valid() {
		return Item{}, errs.Validation("category", "unknown category '"+string(category)+"'")
	}
	if !unitPrice.IsPositive() {
		return Item{}, errs.Validation("unitPrice", "unit price must be positive")
	}
	if quantity < 1 {
		return Item{}, errs.Validation("quantity", "quantity must be at least 1, got "+strconv.Itoa(quantity))
	}
	total, err := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if err != nil {
		return Item{}, err
	}
	if total.ExceedsMax() {
		return Item{}, errs.Validation("unitPrice", "item total "+total.String()+" exceeds maximum of "+money.Max().String())
	}
	return Item{
		name:      name,
		category:  category,
		unitPrice: unitPrice,
		quantity:  quantity,
		total:     total,
	}, nil
}

// Name returns the item name.
func (i Item) Name() string { return i.name }

// Category returns the item category.
func (i Item) Category() Category { return i.category }

// UnitPrice returns the price of a single unit.
func (i Item) UnitPrice() money.Money { return i.unitPrice }

// Quantity returns the number of units.
func (i Item) Quantity() int { return i.quantity }

// Total returns unit price × quantity.
func (i Item) Total() money.Money { return i.total }

// EligibleAmount returns the part of the total subject to the percentage discount.
func (i Item) EligibleAmount() money.Money {
	if i.category.PercentageEligible() {
		return i.total
	}
	return money.Zero()
}
