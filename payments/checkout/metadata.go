package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/pricing"
)

// Preference metadata keys. The provider echoes them back on the payment.
const (
	MetaUserID    = "user_id"
	MetaName      = "cliente_nombre"
	MetaPhone     = "cliente_telefono"
	MetaAddress   = "direccion"
	MetaCart      = "carrito"
	MetaRedeemed  = "puntos_usados"
	MetaShipping  = "costo_envio"
	MetaReference = "referencia_propia"
)

var ErrMissingCart = errors.New("metadata has no cart")

// Metadata is everything reconciliation needs that the provider does not know.
type Metadata struct {
	CustomerID     string
	CustomerName   string
	CustomerPhone  string
	Address        string
	Cart           []api.CartLine
	PointsRedeemed int
	Shipping       decimal.Decimal
	Reference      string
}

// Map renders the metadata for the provider. The cart travels as a JSON string.
func (m Metadata) Map() (map[string]any, error) {
	cart, err := json.Marshal(m.Cart)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}

	out := map[string]any{
		MetaName:      m.CustomerName,
		MetaPhone:     m.CustomerPhone,
		MetaAddress:   m.Address,
		MetaCart:      string(cart),
		MetaRedeemed:  m.PointsRedeemed,
		MetaShipping:  m.Shipping.InexactFloat64(),
		MetaReference: m.Reference,
	}
	if m.CustomerID != "" {
		out[MetaUserID] = m.CustomerID
	}
	return out, nil
}

// ParseMetadata reads metadata as echoed by the provider. Absent points mean
// none were redeemed and absent shipping means the default fee. The cart is
// required.
func ParseMetadata(raw map[string]any) (Metadata, error) {
	m := Metadata{
		CustomerID:    metaString(raw[MetaUserID]),
		CustomerName:  metaString(raw[MetaName]),
		CustomerPhone: metaString(raw[MetaPhone]),
		Address:       metaString(raw[MetaAddress]),
		Reference:     metaString(raw[MetaReference]),
		Shipping:      decimal.NewFromInt(pricing.DefaultShipping),
	}

	cart, err := metaCart(raw[MetaCart])
	if err != nil {
		return Metadata{}, err
	}
	m.Cart = api.DedupeExtras(cart)

	if v, ok := raw[MetaRedeemed]; ok && v != nil {
		d, err := metaDecimal(v)
		if err != nil {
			return Metadata{}, fmt.Errorf("%s: %w", MetaRedeemed, err)
		}
		m.PointsRedeemed = max(0, int(d.IntPart()))
	}

	if v, ok := raw[MetaShipping]; ok && v != nil {
		d, err := metaDecimal(v)
		if err != nil {
			return Metadata{}, fmt.Errorf("%s: %w", MetaShipping, err)
		}
		if !d.IsNegative() {
			m.Shipping = d
		}
	}

	return m, nil
}

func metaCart(v any) ([]api.CartLine, error) {
	var data []byte
	switch c := v.(type) {
	case nil:
		return nil, ErrMissingCart
	case string:
		if c == "" {
			return nil, ErrMissingCart
		}
		data = []byte(c)
	default:
		// Some integrations store the cart as a JSON array rather than a string.
		b, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("re-encode cart: %w", err)
		}
		data = b
	}

	var cart []api.CartLine
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return cart, nil
}

func metaString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func metaDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		if n == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", v)
	}
}
