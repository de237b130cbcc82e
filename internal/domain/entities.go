package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is the catalog row that carries the authoritative stock counter.
type Book struct {
	ISBN         string          `json:"isbn" db:"isbn"`
	Title        string          `json:"title" db:"title"`
	Price        decimal.Decimal `json:"price" db:"price"`
	StockQty     int             `json:"stock_qty" db:"stock_qty"`
	ThresholdQty int             `json:"threshold_qty" db:"threshold_qty"`
	PublisherID  *int64          `json:"publisher_id,omitempty" db:"publisher_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderStatus is the lifecycle state of a replenishment order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// ReplenishmentOrder is a request to a publisher to restock one book.
type ReplenishmentOrder struct {
	ID                   int64       `json:"order_id" db:"order_id"`
	ISBN                 string      `json:"isbn" db:"isbn"`
	BookTitle            string      `json:"book_title,omitempty" db:"book_title"`
	PublisherID          int64       `json:"publisher_id" db:"publisher_id"`
	AdminID              int64       `json:"admin_id" db:"admin_id"`
	OrderDate            time.Time   `json:"order_date" db:"order_date"`
	QuantityOrdered      int         `json:"quantity_ordered" db:"quantity_ordered"`
	Status               OrderStatus `json:"status" db:"status"`
	ExpectedDeliveryDate *time.Time  `json:"expected_delivery_date,omitempty" db:"expected_delivery_date"`
}

// NewReplenishmentOrder builds a Pending order dated on the calendar day of now.
func NewReplenishmentOrder(isbn string, publisherID, adminID int64, quantity int, now time.Time) *ReplenishmentOrder {
	y, m, d := now.Date()
	return &ReplenishmentOrder{
		ISBN:            isbn,
		PublisherID:     publisherID,
		AdminID:         adminID,
		OrderDate:       time.Date(y, m, d, 0, 0, 0, 0, now.Location()),
		QuantityOrdered: quantity,
		Status:          OrderStatusPending,
	}
}

// Confirm moves the order to Confirmed. It reports false when the order was
// already confirmed, in which case nothing changes.
func (o *ReplenishmentOrder) Confirm() (bool, error) {
	switch o.Status {
	case OrderStatusConfirmed:
		return false, nil
	case OrderStatusPending:
		o.Status = OrderStatusConfirmed
		return true, nil
	default:
		return false, &InvalidStateError{OrderID: o.ID, Status: o.Status, Op: "confirm"}
	}
}

// Cancel moves a Pending order to Cancelled.
func (o *ReplenishmentOrder) Cancel() error {
	if o.Status != OrderStatusPending {
		return &InvalidStateError{OrderID: o.ID, Status: o.Status, Op: "cancel"}
	}
	o.Status = OrderStatusCancelled
	return nil
}

// LowStockBook is one row selected by the low-stock scan.
type LowStockBook struct {
	ISBN         string `json:"isbn"`
	Title        string `json:"title"`
	StockQty     int    `json:"stock_qty"`
	ThresholdQty int    `json:"threshold_qty"`
	PublisherID  int64  `json:"publisher_id"`
}

// CartItem is a pending quantity a user intends to buy.
type CartItem struct {
	CartID   int64     `json:"cart_id" db:"cart_id"`
	ISBN     string    `json:"isbn" db:"isbn"`
	Quantity int       `json:"quantity" db:"quantity"`
	AddedAt  time.Time `json:"added_at" db:"added_at"`
}

// CartLine is a cart item joined with the current catalog data of its book.
type CartLine struct {
	ISBN      string          `json:"isbn"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	MaxStock  int             `json:"max_stock"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Payment methods accepted at checkout.
const (
	PaymentCreditCard = "credit_card"
	PaymentDebitCard  = "debit_card"
	PaymentPaypal     = "paypal"
)

// PaymentInfo is supplied by the customer at checkout.
type PaymentInfo struct {
	Method     string `json:"payment_method"`
	CardNumber string `json:"payment_card"`
	ExpiryDate string `json:"expiry_date"`
}

// MaskedCard keeps only the last four digits of the card number.
func (p PaymentInfo) MaskedCard() string {
	digits := make([]rune, 0, len(p.CardNumber))
	for _, r := range p.CardNumber {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return "**** " + string(digits)
}

// Sale is a customer order created at checkout. It is never updated afterwards.
type Sale struct {
	OrderNo       int64           `json:"order_no" db:"order_no"`
	CustomerID    int64           `json:"customer_id" db:"customer_id"`
	OrderDate     time.Time       `json:"order_date" db:"order_date"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaymentMethod string          `json:"payment_method" db:"payment_method"`
	PaymentCard   string          `json:"payment_card,omitempty" db:"payment_card"`
	Items         []SaleLine      `json:"items"`
}

// SaleLine snapshots the unit price of a book at the moment of sale.
type SaleLine struct {
	ISBN        string          `json:"isbn" db:"isbn"`
	Quantity    int             `json:"quantity" db:"quantity"`
	PriceAtSale decimal.Decimal `json:"price_at_sale" db:"price_at_sale"`
}

// Subtotal is quantity times the snapshotted price.
func (l SaleLine) Subtotal() decimal.Decimal {
	return l.PriceAtSale.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MovementReason tells why the stock of a book changed.
type MovementReason string

const (
	MovementSale           MovementReason = "sale"
	MovementReplenishment  MovementReason = "replenishment"
	MovementReconciliation MovementReason = "reconciliation"
	MovementAdjustment     MovementReason = "adjustment"
)

// StockMovement is one append-only entry of the stock audit trail.
type StockMovement struct {
	ID        string         `json:"id" db:"id"`
	ISBN      string         `json:"isbn" db:"isbn"`
	Delta     int            `json:"delta" db:"delta"`
	Reason    MovementReason `json:"reason" db:"reason"`
	Reference string         `json:"reference,omitempty" db:"reference"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
