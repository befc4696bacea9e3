package kount

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/currency"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
)

const (
	defaultChannel = "WEB"

	fulfillmentShipped = "SHIPPED"
	fulfillmentDigital = "DIGITAL"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// Mapper converts validated orders into provider requests.
type Mapper struct {
	clock func() time.Time
	idGen func() string
}

// MapperOption customises a Mapper.
type MapperOption func(*Mapper)

// WithMapperClock overrides the clock used for missing or future timestamps.
func WithMapperClock(clock func() time.Time) MapperOption {
	return func(m *Mapper) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithItemIDGenerator overrides the generator used for items that carry neither sku nor id.
func WithItemIDGenerator(gen func() string) MapperOption {
	return func(m *Mapper) {
		if gen != nil {
			m.idGen = gen
		}
	}
}

// NewMapper constructs a Mapper.
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{
		clock: time.Now,
		idGen: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// BuildOrderRequest maps order using now as the reference time.
func BuildOrderRequest(order domain.OrderInput, opts domain.EvaluateOptions, now time.Time) (OrderRequest, error) {
	return NewMapper(WithMapperClock(func() time.Time { return now })).Build(order, opts)
}

// Build validates order and maps it onto the provider schema. It performs no I/O.
func (m *Mapper) Build(order domain.OrderInput, opts domain.EvaluateOptions) (OrderRequest, error) {
	if err := order.Validate(); err != nil {
		return OrderRequest{}, err
	}
	opts, err := opts.Normalize()
	if err != nil {
		return OrderRequest{}, err
	}

	now := m.clock().UTC().Truncate(time.Second)
	orderCurrency := normalizeCurrency(order.Currency)

	items := m.buildItems(order.Items)
	req := OrderRequest{
		MerchantOrderID:  strings.TrimSpace(order.OrderID),
		Channel:          normalizeChannel(order.Channel),
		DeviceSessionID:  strings.TrimSpace(order.SessionID),
		CreationDateTime: formatTimestamp(order.CreatedAt, now),
		UserIP:           firstNonEmpty(order.UserIP, order.Customer.IPAddress),
		Account:          buildAccount(order.Customer, now),
		Items:            items,
		Fulfillment:      buildFulfillment(order, items),
		Promotions:       buildPromotions(order.Promotions, orderCurrency),
		Loyalty:          buildLoyalty(order.Loyalty, orderCurrency),
		CustomFields:     copyCustomFields(order.CustomFields),
	}

	primary := buildTransaction(*order.Payment, order.Customer, orderCurrency, now)
	primary.OrderTotal = cloneFloat(order.TotalAmount)
	primary.Subtotal = cloneFloat(order.TotalAmount)
	if order.Subtotal != nil {
		primary.Subtotal = cloneFloat(order.Subtotal)
	}
	primary.Tax = buildTax(order.TaxAmount, order.Customer)
	primary.Items = transactionItems(items)
	req.Transactions = append(req.Transactions, primary)

	for _, extra := range order.Transactions {
		tx := buildTransaction(extra, order.Customer, orderCurrency, now)
		tx.OrderTotal = cloneFloat(extra.Amount)
		tx.Subtotal = cloneFloat(extra.Amount)
		req.Transactions = append(req.Transactions, tx)
	}

	if opts.Mode == domain.ModePreAuth {
		for i := range req.Transactions {
			req.Transactions[i].AuthorizationStatus = nil
		}
	}

	return req, nil
}

func (m *Mapper) buildItems(inputs []domain.ItemInput) []Item {
	if len(inputs) == 0 {
		return nil
	}
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		sku := strings.TrimSpace(in.SKU)
		id := firstNonEmpty(sku, in.ID)
		if id == "" {
			id = m.idGen()
		}
		quantity := int64(1)
		if in.Quantity != nil {
			quantity = *in.Quantity
		}
		item := Item{
			ID:          id,
			Price:       cloneFloat(in.Price),
			Description: strings.TrimSpace(in.Description),
			Name:        strings.TrimSpace(in.Name),
			Quantity:    &quantity,
			Category:    strings.TrimSpace(in.Category),
			SubCategory: strings.TrimSpace(in.SubCategory),
			IsDigital:   cloneBool(in.IsDigital),
			SKU:         sku,
			UPC:         strings.TrimSpace(in.UPC),
			Brand:       strings.TrimSpace(in.Brand),
			URL:         strings.TrimSpace(in.URL),
			ImageURL:    strings.TrimSpace(in.ImageURL),
		}
		if in.Color != "" || in.Size != "" || in.Weight != "" {
			item.PhysicalAttributes = &PhysicalAttributes{
				Color:  strings.TrimSpace(in.Color),
				Size:   strings.TrimSpace(in.Size),
				Weight: strings.TrimSpace(in.Weight),
			}
		}
		items = append(items, item)
	}
	return items
}

func buildAccount(customer *domain.CustomerInput, now time.Time) *Account {
	if customer == nil {
		return nil
	}
	account := &Account{
		ID:       strings.TrimSpace(customer.ID),
		Username: firstNonEmpty(customer.Username, customer.Email),
	}
	if ts, ok := parseTimestamp(customer.AccountCreatedAt); ok {
		account.CreationDateTime = clampTimestamp(ts, now)
	}
	if account.ID == "" && account.Username == "" && account.CreationDateTime == "" {
		return nil
	}
	return account
}

func buildFulfillment(order domain.OrderInput, items []Item) []Fulfillment {
	var fulfillmentType string
	switch {
	case order.Shipping != nil:
		fulfillmentType = strings.ToUpper(strings.TrimSpace(order.Shipping.Type))
		if fulfillmentType == "" {
			fulfillmentType = fulfillmentShipped
		}
	case allDigital(items):
		fulfillmentType = fulfillmentDigital
	default:
		return nil
	}

	f := Fulfillment{Type: fulfillmentType}
	if s := order.Shipping; s != nil {
		shipping := &Shipping{
			Amount:         cloneFloat(s.Amount),
			Provider:       strings.TrimSpace(s.Provider),
			TrackingNumber: strings.TrimSpace(s.TrackingNumber),
			Method:         strings.ToUpper(strings.TrimSpace(s.Method)),
		}
		if shipping.Amount != nil || shipping.Provider != "" || shipping.TrackingNumber != "" || shipping.Method != "" {
			f.Shipping = shipping
		}
		f.RecipientPerson = buildPerson(s.FirstName, s.LastName, s.Name, s.Email, s.Phone, s.Address)
	}
	if f.RecipientPerson == nil && order.Customer != nil {
		c := order.Customer
		f.RecipientPerson = buildPerson(c.FirstName, c.LastName, c.Name, c.Email, c.Phone, nil)
	}
	for _, item := range items {
		f.ItemIDs = append(f.ItemIDs, item.ID)
	}
	return []Fulfillment{f}
}

func allDigital(items []Item) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.IsDigital == nil || !*item.IsDigital {
			return false
		}
	}
	return true
}

func buildTransaction(payment domain.PaymentInput, customer *domain.CustomerInput, orderCurrency string, now time.Time) Transaction {
	tx := Transaction{
		Processor:             strings.TrimSpace(payment.Processor),
		ProcessorMerchantID:   strings.TrimSpace(payment.ProcessorMerchantID),
		Currency:              orderCurrency,
		TransactionStatus:     strings.ToUpper(strings.TrimSpace(payment.Status)),
		MerchantTransactionID: strings.TrimSpace(payment.TransactionID),
	}
	if c := strings.TrimSpace(payment.Currency); c != "" {
		tx.Currency = normalizeCurrency(c)
	}

	p := &Payment{
		Type:         strings.ToUpper(strings.TrimSpace(payment.Type)),
		PaymentToken: strings.TrimSpace(payment.Token),
		BIN:          strings.TrimSpace(payment.BIN),
		Last4:        strings.TrimSpace(payment.Last4),
	}
	if *p != (Payment{}) {
		tx.Payment = p
	}

	if customer != nil {
		tx.BilledPerson = buildPerson(customer.FirstName, customer.LastName, customer.Name, customer.Email, customer.Phone, customer.BillingAddress)
	}
	tx.AuthorizationStatus = buildAuthorization(payment, now)
	return tx
}

func buildAuthorization(payment domain.PaymentInput, now time.Time) *AuthorizationStatus {
	auth := &AuthorizationStatus{
		AuthResult:             strings.ToUpper(strings.TrimSpace(payment.AuthResult)),
		DeclineCode:            strings.TrimSpace(payment.DeclineCode),
		ProcessorAuthCode:      strings.TrimSpace(payment.AuthCode),
		ProcessorTransactionID: strings.TrimSpace(payment.ProcessorTransactionID),
	}
	if ts, ok := parseTimestamp(payment.AuthorizedAt); ok {
		auth.DateTime = clampTimestamp(ts, now)
	}
	cvv := strings.ToUpper(strings.TrimSpace(payment.CVVStatus))
	avs := strings.ToUpper(strings.TrimSpace(payment.AVSStatus))
	if cvv != "" || avs != "" {
		auth.VerificationResponse = &VerificationResponse{CVVStatus: cvv, AVSStatus: avs}
	}
	if auth.AuthResult == "" && auth.DateTime == "" && auth.VerificationResponse == nil &&
		auth.DeclineCode == "" && auth.ProcessorAuthCode == "" && auth.ProcessorTransactionID == "" {
		return nil
	}
	return auth
}

func buildTax(amount *float64, customer *domain.CustomerInput) *Tax {
	if amount == nil {
		return nil
	}
	taxable := *amount > 0
	tax := &Tax{IsTaxable: &taxable, TaxAmount: cloneFloat(amount)}
	if customer != nil && customer.BillingAddress != nil {
		tax.TaxableCountryCode = strings.ToUpper(strings.TrimSpace(customer.BillingAddress.CountryCode))
	}
	return tax
}

func transactionItems(items []Item) []TransactionItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]TransactionItem, 0, len(items))
	for _, item := range items {
		out = append(out, TransactionItem{ID: item.ID, Quantity: item.Quantity})
	}
	return out
}

func buildPerson(first, last, full, email, phone string, addr *domain.AddressInput) *Person {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" && last == "" {
		first, last = splitName(full)
	}
	person := &Person{
		EmailAddress: strings.TrimSpace(email),
		PhoneNumber:  strings.TrimSpace(phone),
		Address:      buildAddress(addr),
	}
	if first != "" || last != "" {
		person.Name = &PersonName{First: first, Family: last}
	}
	if person.Name == nil && person.EmailAddress == "" && person.PhoneNumber == "" && person.Address == nil {
		return nil
	}
	return person
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func buildAddress(in *domain.AddressInput) *Address {
	if in == nil {
		return nil
	}
	addr := &Address{
		Line1:       strings.TrimSpace(in.Line1),
		Line2:       strings.TrimSpace(in.Line2),
		City:        strings.TrimSpace(in.City),
		Region:      strings.TrimSpace(in.Region),
		PostalCode:  strings.TrimSpace(in.PostalCode),
		CountryCode: strings.ToUpper(strings.TrimSpace(in.CountryCode)),
	}
	if *addr == (Address{}) {
		return nil
	}
	return addr
}

func buildPromotions(inputs []domain.PromotionInput, orderCurrency string) []Promotion {
	if len(inputs) == 0 {
		return nil
	}
	out := make([]Promotion, 0, len(inputs))
	for _, in := range inputs {
		cur := orderCurrency
		if c := strings.TrimSpace(in.Currency); c != "" {
			cur = normalizeCurrency(c)
		}
		promo := Promotion{
			ID:           strings.TrimSpace(in.ID),
			Description:  strings.TrimSpace(in.Description),
			Status:       strings.ToUpper(strings.TrimSpace(in.Status)),
			StatusReason: strings.TrimSpace(in.StatusReason),
		}
		if in.DiscountPercent != nil || in.DiscountAmount != nil {
			promo.Discount = &Discount{Percentage: cloneFloat(in.DiscountPercent), Amount: cloneFloat(in.DiscountAmount)}
			if in.DiscountAmount != nil {
				promo.Discount.Currency = cur
			}
		}
		if in.CreditAmount != nil || strings.TrimSpace(in.CreditType) != "" {
			promo.Credit = &Credit{
				CreditType: strings.ToUpper(strings.TrimSpace(in.CreditType)),
				Amount:     cloneFloat(in.CreditAmount),
				Currency:   cur,
			}
		}
		out = append(out, promo)
	}
	return out
}

func buildLoyalty(in *domain.LoyaltyInput, orderCurrency string) *Loyalty {
	if in == nil {
		return nil
	}
	loyalty := &Loyalty{
		ID:          strings.TrimSpace(in.ID),
		Description: strings.TrimSpace(in.Description),
	}
	if in.CreditAmount != nil || strings.TrimSpace(in.CreditType) != "" {
		cur := orderCurrency
		if c := strings.TrimSpace(in.Currency); c != "" {
			cur = normalizeCurrency(c)
		}
		loyalty.Credit = &Credit{
			CreditType: strings.ToUpper(strings.TrimSpace(in.CreditType)),
			Amount:     cloneFloat(in.CreditAmount),
			Currency:   cur,
		}
	}
	if loyalty.ID == "" && loyalty.Description == "" && loyalty.Credit == nil {
		return nil
	}
	return loyalty
}

func copyCustomFields(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if strings.TrimSpace(k) == "" || v == nil {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeChannel(value string) string {
	channel := strings.ToUpper(strings.TrimSpace(value))
	if channel == "" {
		return defaultChannel
	}
	return channel
}

func normalizeCurrency(code string) string {
	code = strings.TrimSpace(code)
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String()
	}
	return strings.ToUpper(code)
}

// formatTimestamp renders value as RFC 3339 UTC. Missing or unparseable values become now and
// future values are clamped to now.
func formatTimestamp(value string, now time.Time) string {
	ts, ok := parseTimestamp(value)
	if !ok {
		return now.Format(time.RFC3339)
	}
	return clampTimestamp(ts, now)
}

func clampTimestamp(ts, now time.Time) string {
	ts = ts.UTC().Truncate(time.Second)
	if ts.After(now) {
		ts = now
	}
	return ts.Format(time.RFC3339)
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
		// Epoch values above 1e12 are milliseconds.
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// EncodeOrderRequest serialises req and removes empty strings, objects and arrays at every
// depth so absent values never reach the wire as nulls or empty containers.
func EncodeOrderRequest(req OrderRequest) ([]byte, error) {
	first, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("kount: encode order request: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(first))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("kount: decode order request: %w", err)
	}
	pruned, _ := prune(tree)
	out, err := json.Marshal(pruned)
	if err != nil {
		return nil, fmt.Errorf("kount: encode pruned order request: %w", err)
	}
	return out, nil
}

// prune reports false when value is empty and should be dropped by its parent.
func prune(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		return v, strings.TrimSpace(v) != ""
	case map[string]any:
		for key, child := range v {
			kept, ok := prune(child)
			if !ok {
				delete(v, key)
				continue
			}
			v[key] = kept
		}
		return v, len(v) > 0
	case []any:
		out := v[:0]
		for _, child := range v {
			if kept, ok := prune(child); ok {
				out = append(out, kept)
			}
		}
		return out, len(out) > 0
	default:
		return v, true
	}
}
