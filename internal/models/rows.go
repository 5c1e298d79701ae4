package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Canonical row shapes handed to the ingestion caller. Field names are stable
// regardless of which upstream schema version produced them; linked ids that
// the tenant's grant cannot expose are nil rather than missing rows.

// QuoteRow is one quote/estimate.
type QuoteRow struct {
	ID        string  `json:"id"`
	Number    string  `json:"number"`
	Title     string  `json:"title,omitempty"`
	Status    string  `json:"status"`
	Total     float64 `json:"total"`
	ClientID  *string `json:"client_id"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// InvoiceRow is one issued invoice.
type InvoiceRow struct {
	ID       string  `json:"id"`
	Number   string  `json:"number"`
	Status   string  `json:"status"`
	Subtotal float64 `json:"subtotal"`
	Total    float64 `json:"total"`
	Balance  float64 `json:"balance"`
	ClientID *string `json:"client_id"`
	IssuedAt string  `json:"issued_at"`
	DueAt    string  `json:"due_at,omitempty"`
}

// JobRow is one scheduled job/work order.
type JobRow struct {
	ID        string  `json:"id"`
	Number    string  `json:"number"`
	Title     string  `json:"title,omitempty"`
	Status    string  `json:"status"`
	Total     float64 `json:"total"`
	ClientID  *string `json:"client_id"`
	StartAt   string  `json:"start_at,omitempty"`
	EndAt     string  `json:"end_at,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// ClientRow is one customer record. Address fields are only populated when
// the tenant granted the scopes the rich query needs.
type ClientRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Company   string `json:"company,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	City      string `json:"city,omitempty"`
	Province  string `json:"province,omitempty"`
	CreatedAt string `json:"created_at"`
}

// PaymentRow is one recorded payment.
type PaymentRow struct {
	ID         string  `json:"id"`
	Amount     float64 `json:"amount"`
	Method     string  `json:"method,omitempty"`
	ClientID   *string `json:"client_id"`
	InvoiceID  *string `json:"invoice_id"`
	ReceivedAt string  `json:"received_at"`
}

// Amount coerces numeric or numeric-string input into a finite float.
// Un-parseable input yields 0 rather than failing the row.
func Amount(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(t, "$"))
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	case map[string]interface{}:
		// Money objects arrive as {"amount": ..., "currency": ...} on some
		// schema versions.
		if amt, ok := t["amount"]; ok {
			return Amount(amt)
		}
		return 0
	default:
		return 0
	}
}

// OptionalID extracts a nested object id as a nullable string, e.g.
// node["client"]["id"]. Returns nil when the path is absent.
func OptionalID(node map[string]interface{}, key string) *string {
	raw, ok := node[key]
	if !ok || raw == nil {
		return nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}

// Str extracts a string field, tolerating absence.
func Str(node map[string]interface{}, key string) string {
	s, _ := node[key].(string)
	return s
}
