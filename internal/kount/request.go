package kount

// OrderRequest is the Commerce v2 order envelope. Every optional member is a pointer, slice or
// map tagged omitempty; EncodeOrderRequest additionally prunes empty objects left behind.
type OrderRequest struct {
	MerchantOrderID  string         `json:"merchantOrderId"`
	Channel          string         `json:"channel,omitempty"`
	DeviceSessionID  string         `json:"deviceSessionId,omitempty"`
	CreationDateTime string         `json:"creationDateTime,omitempty"`
	UserIP           string         `json:"userIp,omitempty"`
	Account          *Account       `json:"account,omitempty"`
	Items            []Item         `json:"items,omitempty"`
	Fulfillment      []Fulfillment  `json:"fulfillment,omitempty"`
	Transactions     []Transaction  `json:"transactions,omitempty"`
	Promotions       []Promotion    `json:"promotions,omitempty"`
	Loyalty          *Loyalty       `json:"loyalty,omitempty"`
	CustomFields     map[string]any `json:"customFields,omitempty"`
}

// Account describes the customer account placing the order.
type Account struct {
	ID               string `json:"id,omitempty"`
	Type             string `json:"type,omitempty"`
	CreationDateTime string `json:"creationDateTime,omitempty"`
	Username         string `json:"username,omitempty"`
	AccountIsActive  *bool  `json:"accountIsActive,omitempty"`
}

// Item is one order line.
type Item struct {
	ID                 string              `json:"id,omitempty"`
	Price              *float64            `json:"price,omitempty"`
	Description        string              `json:"description,omitempty"`
	Name               string              `json:"name,omitempty"`
	Quantity           *int64              `json:"quantity,omitempty"`
	Category           string              `json:"category,omitempty"`
	SubCategory        string              `json:"subCategory,omitempty"`
	IsDigital          *bool               `json:"isDigital,omitempty"`
	SKU                string              `json:"sku,omitempty"`
	UPC                string              `json:"upc,omitempty"`
	Brand              string              `json:"brand,omitempty"`
	URL                string              `json:"url,omitempty"`
	ImageURL           string              `json:"imageUrl,omitempty"`
	PhysicalAttributes *PhysicalAttributes `json:"physicalAttributes,omitempty"`
}

// PhysicalAttributes holds the optional physical description of an item.
type PhysicalAttributes struct {
	Color  string `json:"color,omitempty"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
}

// Fulfillment describes how the order reaches the recipient.
type Fulfillment struct {
	Type            string    `json:"type,omitempty"`
	Shipping        *Shipping `json:"shipping,omitempty"`
	RecipientPerson *Person   `json:"recipientPerson,omitempty"`
	ItemIDs         []string  `json:"itemIds,omitempty"`
}

// Shipping carries carrier and cost details for physical fulfillment.
type Shipping struct {
	Amount         *float64 `json:"amount,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	TrackingNumber string   `json:"trackingNumber,omitempty"`
	Method         string   `json:"method,omitempty"`
}

// Person is a named party with contact details, used for recipients and billing.
type Person struct {
	Name         *PersonName `json:"name,omitempty"`
	EmailAddress string      `json:"emailAddress,omitempty"`
	PhoneNumber  string      `json:"phoneNumber,omitempty"`
	Address      *Address    `json:"address,omitempty"`
}

// PersonName splits a person name into given and family parts.
type PersonName struct {
	First  string `json:"first,omitempty"`
	Family string `json:"family,omitempty"`
}

// Address is a postal address.
type Address struct {
	Line1       string `json:"line1,omitempty"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

// Transaction is one payment attempt against the order.
type Transaction struct {
	Processor             string               `json:"processor,omitempty"`
	ProcessorMerchantID   string               `json:"processorMerchantId,omitempty"`
	Payment               *Payment             `json:"payment,omitempty"`
	Subtotal              *float64             `json:"subtotal,omitempty"`
	OrderTotal            *float64             `json:"orderTotal,omitempty"`
	Currency              string               `json:"currency,omitempty"`
	Tax                   *Tax                 `json:"tax,omitempty"`
	BilledPerson          *Person              `json:"billedPerson,omitempty"`
	TransactionStatus     string               `json:"transactionStatus,omitempty"`
	AuthorizationStatus   *AuthorizationStatus `json:"authorizationStatus,omitempty"`
	MerchantTransactionID string               `json:"merchantTransactionId,omitempty"`
	Items                 []TransactionItem    `json:"items,omitempty"`
}

// Payment identifies the payment instrument.
type Payment struct {
	Type         string `json:"type,omitempty"`
	PaymentToken string `json:"paymentToken,omitempty"`
	BIN          string `json:"bin,omitempty"`
	Last4        string `json:"last4,omitempty"`
}

// Tax reports the tax charged on a transaction.
type Tax struct {
	IsTaxable          *bool    `json:"isTaxable,omitempty"`
	TaxableCountryCode string   `json:"taxableCountryCode,omitempty"`
	TaxAmount          *float64 `json:"taxAmount,omitempty"`
}

// AuthorizationStatus carries the processor outcome. It is omitted for pre-authorization evaluations.
type AuthorizationStatus struct {
	AuthResult             string                `json:"authResult,omitempty"`
	DateTime               string                `json:"dateTime,omitempty"`
	VerificationResponse   *VerificationResponse `json:"verificationResponse,omitempty"`
	DeclineCode            string                `json:"declineCode,omitempty"`
	ProcessorAuthCode      string                `json:"processorAuthCode,omitempty"`
	ProcessorTransactionID string                `json:"processorTransactionId,omitempty"`
}

// VerificationResponse holds card verification results.
type VerificationResponse struct {
	CVVStatus string `json:"cvvStatus,omitempty"`
	AVSStatus string `json:"avsStatus,omitempty"`
}

// TransactionItem links a transaction to a purchased item.
type TransactionItem struct {
	ID       string `json:"id,omitempty"`
	Quantity *int64 `json:"quantity,omitempty"`
}

// Promotion is a discount or credit applied to the order.
type Promotion struct {
	ID           string    `json:"id,omitempty"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status,omitempty"`
	StatusReason string    `json:"statusReason,omitempty"`
	Discount     *Discount `json:"discount,omitempty"`
	Credit       *Credit   `json:"credit,omitempty"`
}

// Discount is a percentage or amount reduction.
type Discount struct {
	Percentage *float64 `json:"percentage,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
	Currency   string   `json:"currency,omitempty"`
}

// Credit is a store credit or gift card amount.
type Credit struct {
	CreditType string   `json:"creditType,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
	Currency   string   `json:"currency,omitempty"`
}

// Loyalty describes loyalty programme credit used on the order.
type Loyalty struct {
	ID          string  `json:"id,omitempty"`
	Description string  `json:"description,omitempty"`
	Credit      *Credit `json:"credit,omitempty"`
}
