package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money est un montant à virgule fixe, toujours sérialisé avec deux décimales ("100000.00").
type Money struct {
	decimal.Decimal
}

var Zero = Money{decimal.Zero}

func NewMoney(d decimal.Decimal) Money { return Money{d} }

func MustMoney(s string) Money {
	return Money{decimal.RequireFromString(s)}
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d}, nil
}

// Mul multiplie par une quantité entière.
func (m Money) Mul(qty int) Money {
	return Money{m.Decimal.Mul(decimal.NewFromInt(int64(qty)))}
}

func (m Money) Add(o Money) Money {
	return Money{m.Decimal.Add(o.Decimal)}
}

func (m Money) Equal(o Money) bool { return m.Decimal.Equal(o.Decimal) }

// String renvoie la forme canonique "1234.50".
func (m Money) String() string { return m.StringFixed(2) }

// MinorUnits renvoie le montant en centimes / kopecks.
func (m Money) MinorUnits() int64 {
	return m.Decimal.Shift(2).Round(0).IntPart()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.StringFixed(2))
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Decimal.UnmarshalJSON(b)
}
