package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const MonthLayout = "2006-01"

type Item struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Price      string    `json:"price"`
	Image      []byte    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ItemInput struct {
	Name       string           `json:"name" validate:"required,max=120"`
	Price      *decimal.Decimal `json:"price" validate:"required"`
	Image      []byte           `json:"image,omitempty" validate:"max=5242880"`
	ClearImage bool             `json:"clear_image,omitempty"`
}

type CartLine struct {
	ItemID         int64  `json:"item_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	TotalCents     int64  `json:"total_cents"`
}

type CartView struct {
	Lines        []CartLine `json:"lines"`
	ItemCount    int        `json:"item_count"`
	TotalCents   int64      `json:"total_cents"`
	Total        string     `json:"total"`
	DisplayTotal string     `json:"display_total"`
}

type CartAddRequest struct {
	ItemID int64 `json:"item_id" validate:"required,gt=0"`
}

type CartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=100000"`
}

// SaleLine is immutable once written; name and unit price are captured at sale time.
type SaleLine struct {
	ID             int64     `json:"id"`
	InvoiceID      string    `json:"invoice_id"`
	ItemID         int64     `json:"item_id"`
	ItemName       string    `json:"item_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
	SoldAt         time.Time `json:"sold_at"`
}

type Invoice struct {
	ID           string    `json:"id"`
	Number       int       `json:"invoice_number"`
	BusinessDate string    `json:"business_date"`
	CreatedAt    time.Time `json:"created_at"`
	LineCount    int       `json:"line_count"`
	ItemCount    int       `json:"item_count"`
	TotalCents   int64     `json:"total_cents"`
}

func (i Invoice) Label() string {
	return InvoiceLabel(i.Number)
}

func InvoiceLabel(number int) string {
	return fmt.Sprintf("INV-%04d", number)
}

type DailyInvoiceCounter struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Receipt struct {
	InvoiceID     string     `json:"invoice_id"`
	InvoiceNumber int        `json:"invoice_number"`
	Label         string     `json:"label"`
	SoldAt        time.Time  `json:"sold_at"`
	Lines         []CartLine `json:"lines"`
	TotalCents    int64      `json:"total_cents"`
	Total         string     `json:"total"`
	DisplayTotal  string     `json:"display_total"`
}

type ItemTotal struct {
	ItemID      int64  `json:"item_id"`
	ItemName    string `json:"item_name"`
	Quantity    int64  `json:"quantity"`
	AmountCents int64  `json:"amount_cents"`
}

type SalesReport struct {
	Period       string      `json:"period"`
	Label        string      `json:"label"`
	From         time.Time   `json:"from"`
	To           time.Time   `json:"to"`
	Lines        []ItemTotal `json:"lines"`
	TotalCents   int64       `json:"total_cents"`
	Total        string      `json:"total"`
	DisplayTotal string      `json:"display_total"`
}

func (r SalesReport) Empty() bool {
	return len(r.Lines) == 0
}

type InvoiceSummary struct {
	InvoiceID     string    `json:"invoice_id"`
	Label         string    `json:"label"`
	InvoiceNumber int       `json:"invoice_number"`
	BusinessDate  string    `json:"business_date"`
	SoldAt        time.Time `json:"sold_at"`
	LineCount     int       `json:"line_count"`
	ItemCount     int       `json:"item_count"`
	TotalCents    int64     `json:"total_cents"`
	Total         string    `json:"total"`
}

type InvoiceDetailLine struct {
	ItemID         int64  `json:"item_id"`
	ItemName       string `json:"item_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type InvoiceDetail struct {
	InvoiceSummary
	Lines        []InvoiceDetailLine `json:"lines"`
	DisplayTotal string              `json:"display_total"`
}

type SequencerStatus struct {
	Date     string                `json:"date"`
	Current  int                   `json:"current"`
	Next     string                `json:"next_label"`
	Counters []DailyInvoiceCounter `json:"counters"`
}
