package domain

// OrderInput is the caller supplied order submitted for a risk evaluation. Optional values are
// pointers, slices or maps so that an absent value is distinguishable from a zero value.
type OrderInput struct {
	OrderID      string           `json:"order_id" validate:"required"`
	SessionID    string           `json:"session_id" validate:"required"`
	TotalAmount  *float64         `json:"total_amount" validate:"required,gte=0"`
	Currency     string           `json:"currency" validate:"required,iso4217"`
	CreatedAt    string           `json:"created_at" validate:"required"`
	Channel      string           `json:"channel" validate:"required"`
	Payment      *PaymentInput    `json:"payment" validate:"required"`
	Customer     *CustomerInput   `json:"customer" validate:"required"`
	Subtotal     *float64         `json:"subtotal,omitempty"`
	TaxAmount    *float64         `json:"tax_amount,omitempty"`
	UserIP       string           `json:"user_ip,omitempty"`
	Items        []ItemInput      `json:"items,omitempty"`
	Shipping     *ShippingInput   `json:"shipping,omitempty"`
	Transactions []PaymentInput   `json:"transactions,omitempty"`
	Promotions   []PromotionInput `json:"promotions,omitempty"`
	Loyalty      *LoyaltyInput    `json:"loyalty,omitempty"`
	CustomFields map[string]any   `json:"custom_fields,omitempty"`
}

// CustomerInput describes the purchasing customer.
type CustomerInput struct {
	ID               string        `json:"id,omitempty"`
	Email            string        `json:"email,omitempty"`
	Name             string        `json:"name,omitempty"`
	FirstName        string        `json:"first_name,omitempty"`
	LastName         string        `json:"last_name,omitempty"`
	Phone            string        `json:"phone,omitempty"`
	IPAddress        string        `json:"ip_address,omitempty"`
	Username         string        `json:"username,omitempty"`
	AccountCreatedAt string        `json:"account_created_at,omitempty"`
	BillingAddress   *AddressInput `json:"billing_address,omitempty"`
}

// AddressInput is a postal address.
type AddressInput struct {
	Line1       string `json:"line1,omitempty"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// ItemInput is a single order line.
type ItemInput struct {
	ID          string   `json:"id,omitempty"`
	SKU         string   `json:"sku,omitempty"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Quantity    *int64   `json:"quantity,omitempty"`
	Category    string   `json:"category,omitempty"`
	SubCategory string   `json:"sub_category,omitempty"`
	IsDigital   *bool    `json:"is_digital,omitempty"`
	UPC         string   `json:"upc,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	URL         string   `json:"url,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Color       string   `json:"color,omitempty"`
	Size        string   `json:"size,omitempty"`
	Weight      string   `json:"weight,omitempty"`
}

// ShippingInput captures how the order is fulfilled and who receives it.
type ShippingInput struct {
	Type           string        `json:"type,omitempty"`
	Amount         *float64      `json:"amount,omitempty"`
	Provider       string        `json:"provider,omitempty"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
	Method         string        `json:"method,omitempty"`
	Name           string        `json:"name,omitempty"`
	FirstName      string        `json:"first_name,omitempty"`
	LastName       string        `json:"last_name,omitempty"`
	Email          string        `json:"email,omitempty"`
	Phone          string        `json:"phone,omitempty"`
	Address        *AddressInput `json:"address,omitempty"`
}

// PaymentInput is a payment attempt together with its authorization outcome when known.
type PaymentInput struct {
	Type                   string   `json:"type,omitempty"`
	Token                  string   `json:"token,omitempty"`
	BIN                    string   `json:"bin,omitempty"`
	Last4                  string   `json:"last4,omitempty"`
	Processor              string   `json:"processor,omitempty"`
	ProcessorMerchantID    string   `json:"processor_merchant_id,omitempty"`
	TransactionID          string   `json:"transaction_id,omitempty"`
	Status                 string   `json:"status,omitempty"`
	Amount                 *float64 `json:"amount,omitempty"`
	Currency               string   `json:"currency,omitempty"`
	AuthResult             string   `json:"auth_result,omitempty"`
	AuthCode               string   `json:"auth_code,omitempty"`
	AVSStatus              string   `json:"avs_status,omitempty"`
	CVVStatus              string   `json:"cvv_status,omitempty"`
	DeclineCode            string   `json:"decline_code,omitempty"`
	ProcessorTransactionID string   `json:"processor_transaction_id,omitempty"`
	AuthorizedAt           string   `json:"authorized_at,omitempty"`
}

// PromotionInput is a promotion applied to the order.
type PromotionInput struct {
	ID              string   `json:"id,omitempty"`
	Description     string   `json:"description,omitempty"`
	Status          string   `json:"status,omitempty"`
	StatusReason    string   `json:"status_reason,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	DiscountAmount  *float64 `json:"discount_amount,omitempty"`
	CreditType      string   `json:"credit_type,omitempty"`
	CreditAmount    *float64 `json:"credit_amount,omitempty"`
	Currency        string   `json:"currency,omitempty"`
}

// LoyaltyInput is loyalty credit redeemed on the order.
type LoyaltyInput struct {
	ID           string   `json:"id,omitempty"`
	Description  string   `json:"description,omitempty"`
	CreditType   string   `json:"credit_type,omitempty"`
	CreditAmount *float64 `json:"credit_amount,omitempty"`
	Currency     string   `json:"currency,omitempty"`
}
