package cart

import (
	"errors"
	"slices"

	"bakerypos/internal/domain"
	"bakerypos/internal/money"
)

// MaxQuantity bounds a single line.
const MaxQuantity = 100_000

var (
	ErrOutOfRange      = errors.New("line index out of range")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 100000")
	ErrAmountRange     = errors.New("line total out of range")
)

// Cart is the pending sale of a single till. It is not safe for concurrent use.
type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{lines: make([]domain.CartLine, 0, 8)}
}

// AddLine appends the item with quantity 1, or bumps the quantity of the
// line already holding the same item id.
func (c *Cart) AddLine(itemID int64, name string, unitPriceCents int64) (domain.CartLine, error) {
	if i := c.IndexOf(itemID); i >= 0 {
		return c.setQuantity(i, c.lines[i].Quantity+1)
	}

	if unitPriceCents < 0 {
		return domain.CartLine{}, ErrAmountRange
	}
	line := domain.CartLine{
		ItemID:         itemID,
		Name:           name,
		UnitPriceCents: unitPriceCents,
		Quantity:       1,
		TotalCents:     unitPriceCents,
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// IndexOf returns the line holding itemID, or -1.
func (c *Cart) IndexOf(itemID int64) int {
	return slices.IndexFunc(c.lines, func(line domain.CartLine) bool {
		return line.ItemID == itemID
	})
}

func (c *Cart) RemoveLine(index int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrOutOfRange
	}
	c.lines = slices.Delete(c.lines, index, index+1)
	return nil
}

func (c *Cart) SetQuantity(index int, quantity int) (domain.CartLine, error) {
	if index < 0 || index >= len(c.lines) {
		return domain.CartLine{}, ErrOutOfRange
	}
	return c.setQuantity(index, quantity)
}

// setQuantity leaves the line untouched when the quantity or the resulting
// total is out of range.
func (c *Cart) setQuantity(index int, quantity int) (domain.CartLine, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return domain.CartLine{}, ErrInvalidQuantity
	}
	line := &c.lines[index]
	total, ok := money.MulCents(line.UnitPriceCents, quantity)
	if !ok {
		return domain.CartLine{}, ErrAmountRange
	}
	line.Quantity = quantity
	line.TotalCents = total
	return *line, nil
}

func (c *Cart) Clear() {
	c.lines = c.lines[:0]
}

func (c *Cart) Total() int64 {
	var total int64
	for _, line := range c.lines {
		total += line.TotalCents
	}
	return total
}

func (c *Cart) ItemCount() int {
	count := 0
	for _, line := range c.lines {
		count += line.Quantity
	}
	return count
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines returns a copy; callers cannot mutate the cart through it.
func (c *Cart) Lines() []domain.CartLine {
	return slices.Clone(c.lines)
}
