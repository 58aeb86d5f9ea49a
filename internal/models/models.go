package models

import "time"

// User represents a Telegram user known to the bot
type User struct {
	ID          int64     `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	FullName    string    `db:"full_name" json:"full_name"`
	IsBlocked   bool      `db:"is_blocked" json:"is_blocked"`
	IsException bool      `db:"is_exception" json:"is_exception"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Referral links a user to the user who invited them; at most one per user
type Referral struct {
	UserID     int64     `db:"user_id" json:"user_id"`
	ReferredBy int64     `db:"referred_by" json:"referred_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Channel is a Telegram channel the gate requires a subscription to while enabled
type Channel struct {
	ID         int64  `db:"id" json:"id"`
	TelegramID string `db:"telegram_id" json:"telegram_id"`
	Title      string `db:"title" json:"title"`
	IsEnabled  bool   `db:"is_enabled" json:"is_enabled"`
}

// Product represents a product in the catalog; price is in Stars
type Product struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Price       int64     `db:"price" json:"price"`
	ImageFileID string    `db:"image_file_id" json:"image_file_id,omitempty"`
	Category    string    `db:"category" json:"category,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Inventory represents product stock, one row per product
type Inventory struct {
	ProductID int64     `db:"product_id" json:"product_id"`
	Stock     int       `db:"stock" json:"stock"`
	Reserved  int       `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is one (user, product) line; the pair is unique
type CartItem struct {
	ID        int64 `db:"id" json:"id"`
	UserID    int64 `db:"user_id" json:"user_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// CartLine is a cart item joined against the catalog for display and checkout
type CartLine struct {
	ProductID int64  `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int    `db:"quantity" json:"quantity"`
	Stock     int    `db:"stock" json:"stock"`
	IsActive  bool   `db:"is_active" json:"is_active"`
}

// PendingOrder is the volatile per-user snapshot held between checkout and
// payment success. It lives in Redis under a TTL and is overwritten by each
// new checkout.
type PendingOrder struct {
	UserID    int64          `json:"user_id"`
	PaymentID string         `json:"payment_id"`
	Total     int64          `json:"total"`
	Lines     []SnapshotLine `json:"lines"`
	CreatedAt time.Time      `json:"created_at"`
}

// SnapshotLine freezes a (product, quantity, unit price) at checkout time
type SnapshotLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Order is the immutable record of a paid transaction
type Order struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	TotalAmount     int64     `db:"total_amount" json:"total_amount"`
	PaymentID       string    `db:"payment_id" json:"payment_id"`
	ChargeID        string    `db:"charge_id" json:"charge_id"`
	ShippingAddress string    `db:"shipping_address" json:"shipping_address"`
	Status          string    `db:"status" json:"status"`
	NeedsManual     bool      `db:"needs_manual_fulfillment" json:"needs_manual_fulfillment"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is one line of an order; name and unit price are captured at
// purchase time so later catalog edits do not rewrite history
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// OrderStats aggregates a user's purchase history
type OrderStats struct {
	Count      int        `db:"count" json:"count"`
	TotalSpent int64      `db:"total_spent" json:"total_spent"`
	FirstOrder *time.Time `db:"first_order" json:"first_order,omitempty"`
	LastOrder  *time.Time `db:"last_order" json:"last_order,omitempty"`
}

// ProductUpdate carries a partial field set for catalog updates
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *int64
	ImageFileID *string
	Category    *string
	IsActive    *bool
}
