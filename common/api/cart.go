package api

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Extra is an add-on chosen for a cart line. Its price is already folded into
// the line's unit price by the storefront, so it is informational here.
type Extra struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"nombre"`
	Price decimal.Decimal `json:"precio"`
}

// UnmarshalJSON accepts both the Spanish and the English field names the
// storefront has used over time.
func (e *Extra) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     json.RawMessage     `json:"id"`
		Nombre string              `json:"nombre"`
		Name   string              `json:"name"`
		Precio decimal.NullDecimal `json:"precio"`
		Price  decimal.NullDecimal `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.ID = rawID(raw.ID)
	e.Name = firstNonEmpty(raw.Nombre, raw.Name)
	switch {
	case raw.Precio.Valid:
		e.Price = raw.Precio.Decimal
	case raw.Price.Valid:
		e.Price = raw.Price.Decimal
	default:
		e.Price = decimal.Zero
	}
	return nil
}

// key is the identity used for de-duplication: the id when present, otherwise
// the normalized name.
func (e Extra) key() string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	return "name:" + strings.ToLower(strings.TrimSpace(e.Name))
}

// CartLine is one configured product in the cart.
type CartLine struct {
	ProductID string          `json:"id,omitempty"`
	Name      string          `json:"nombre"`
	UnitPrice decimal.Decimal `json:"precio"`
	Quantity  int             `json:"quantity"`
	Extras    []Extra         `json:"extras,omitempty"`
	Sauce     string          `json:"salsa,omitempty"`
	Size      string          `json:"size,omitempty"`
}

// UnmarshalJSON tolerates numeric ids and the legacy "cantidad" and
// "ingredientes" keys. The storefront spreads the whole product into each cart
// item, so "ingredientes" is the product's option menu whenever "extras" is
// present; it only stands for the chosen extras when "extras" is absent.
// "originalId" is the catalog id; "id" may be the composite cart key.
func (l *CartLine) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           json.RawMessage `json:"id"`
		OriginalID   json.RawMessage `json:"originalId"`
		ProductID    json.RawMessage `json:"productId"`
		Nombre       string          `json:"nombre"`
		Name         string          `json:"name"`
		Precio       decimal.Decimal `json:"precio"`
		Quantity     int             `json:"quantity"`
		Cantidad     int             `json:"cantidad"`
		Extras       *[]Extra        `json:"extras"`
		Ingredientes []Extra         `json:"ingredientes"`
		Salsa        string          `json:"salsa"`
		Size         string          `json:"size"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.ProductID = firstNonEmpty(rawID(raw.OriginalID), rawID(raw.ProductID), rawID(raw.ID))
	l.Name = firstNonEmpty(raw.Nombre, raw.Name)
	l.UnitPrice = raw.Precio
	l.Quantity = raw.Quantity
	if l.Quantity == 0 {
		l.Quantity = raw.Cantidad
	}
	if raw.Extras != nil {
		l.Extras = *raw.Extras
	} else {
		l.Extras = raw.Ingredientes
	}
	l.Sauce = raw.Salsa
	l.Size = raw.Size
	return nil
}

// Subtotal is unit price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DedupeExtras returns a copy of lines in which every line's extras appear at
// most once, keeping first occurrences in order. It is idempotent.
func DedupeExtras(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	for i, line := range lines {
		out[i] = line
		if len(line.Extras) == 0 {
			continue
		}

		seen := make(map[string]struct{}, len(line.Extras))
		extras := make([]Extra, 0, len(line.Extras))
		for _, e := range line.Extras {
			k := e.key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			extras = append(extras, e)
		}
		out[i].Extras = extras
	}
	return out
}

// rawID renders a JSON string or number id as a string.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
