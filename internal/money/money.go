package money

import (
	"errors"
	"math"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrNegative  = errors.New("amount must not be negative")
	ErrPrecision = errors.New("amount has more than two decimal places")
	ErrRange     = errors.New("amount exceeds the catalog ceiling")
)

// MaxPriceCents is the highest unit price the catalog accepts (1,000,000.00).
const MaxPriceCents int64 = 100_000_000

var (
	hundred  = decimal.NewFromInt(100)
	maxPrice = decimal.NewFromInt(MaxPriceCents)
)

const DefaultCurrency = "LBP"

// DefaultRate is the fixed display rate in units per dollar.
var DefaultRate = decimal.NewFromInt(90000)

// CentsFromDecimal converts a non-negative amount with at most two decimal places to cents.
func CentsFromDecimal(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegative
	}
	if !amount.Equal(amount.Round(2)) {
		return 0, ErrPrecision
	}
	cents := amount.Mul(hundred)
	if cents.GreaterThan(maxPrice) {
		return 0, ErrRange
	}
	return cents.IntPart(), nil
}

// MulCents returns unitCents*quantity, or false when either factor is
// negative or the product does not fit in int64.
func MulCents(unitCents int64, quantity int) (int64, bool) {
	if unitCents < 0 || quantity < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(unitCents), uint64(quantity))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// AddCents returns a+b for non-negative amounts, or false on overflow.
func AddCents(a int64, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

func ParseCents(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return CentsFromDecimal(amount)
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents the way receipts print them, e.g. "$10.00".
func Format(cents int64) string {
	return "$" + FromCents(cents).StringFixed(2)
}

// Converter renders amounts in the till's secondary display currency at a fixed rate.
type Converter struct {
	Currency string
	Rate     decimal.Decimal
	printer  *message.Printer
}

func NewConverter(currency string, rate decimal.Decimal) Converter {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if rate.IsZero() || rate.IsNegative() {
		rate = DefaultRate
	}
	return Converter{
		Currency: currency,
		Rate:     rate,
		printer:  message.NewPrinter(language.English),
	}
}

// Convert truncates toward zero, matching the whole-unit display on the till.
func (c Converter) Convert(cents int64) int64 {
	return FromCents(cents).Mul(c.Rate).Truncate(0).IntPart()
}

func (c Converter) Format(cents int64) string {
	printer := c.printer
	if printer == nil {
		printer = message.NewPrinter(language.English)
	}
	return printer.Sprintf("%s %d", c.Currency, c.Convert(cents))
}
