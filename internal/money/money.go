package money

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor units per major unit.
const Scale = 100

const fractionDigits = 2

// Money is an amount in minor currency units (e.g. paisa, cents).
// Arithmetic saturates at the int64 bounds instead of wrapping.
type Money int64

// Zero is the zero amount.
const Zero Money = 0

// FromMajor converts a whole number of major units to Money.
func FromMajor(units int64) Money {
	return Money(units).MulInt(Scale)
}

// Parse converts decimal text such as "250" or "250.50" to Money.
// More than two fractional digits are rejected rather than rounded.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -fractionDigits && !d.Equal(d.Truncate(fractionDigits)) {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, fractionDigits)
	}
	minor := d.Shift(fractionDigits)
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("invalid amount %q: out of range", s)
	}
	return Money(minor.IntPart()), nil
}

// Int64 returns the amount in minor units.
func (m Money) Int64() int64 {
	return int64(m)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -fractionDigits)
}

// String formats the amount in major units with two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(fractionDigits)
}

// Format prefixes the amount with a currency code.
func (m Money) Format(currency string) string {
	if currency == "" {
		return m.String()
	}
	return currency + " " + m.String()
}

func (m Money) Add(o Money) Money {
	r := m + o
	// overflow iff both operands share a sign that the result lost
	if (m > 0 && o > 0 && r < 0) || (m < 0 && o < 0 && r >= 0) {
		if m > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return r
}

// Sub subtracts without clamping; use it for intermediate math.
func (m Money) Sub(o Money) Money {
	if o == math.MinInt64 {
		if m >= 0 {
			return math.MaxInt64
		}
		return m - o
	}
	return m.Add(-o)
}

// SubClamped subtracts and floors the result at zero. Balances owed never go negative.
func (m Money) SubClamped(o Money) Money {
	r := m.Sub(o)
	if r < 0 {
		return 0
	}
	return r
}

// MulInt multiplies by an integer count, e.g. monthly rent times months.
func (m Money) MulInt(n int64) Money {
	if m == 0 || n == 0 {
		return 0
	}
	r := int64(m) * n
	if r/n != int64(m) || (int64(m) == -1 && n == math.MinInt64) || (n == -1 && int64(m) == math.MinInt64) {
		if (m > 0) == (n > 0) {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return Money(r)
}

// Cmp returns -1, 0 or 1.
func (m Money) Cmp(o Money) int {
	switch {
	case m < o:
		return -1
	case m > o:
		return 1
	}
	return 0
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsPositive() bool { return m > 0 }
func (m Money) IsNegative() bool { return m < 0 }

func (m Money) GreaterThan(o Money) bool { return m > o }
func (m Money) LessThan(o Money) bool    { return m < o }

// Min returns the smaller of two amounts.
func Min(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of two amounts.
func Max(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Percent returns round(100 * part / whole), rounding half up. Zero when whole <= 0.
func Percent(part, whole Money) int {
	if whole <= 0 {
		return 0
	}
	p := decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(whole)))
	return int(p.Round(0).IntPart())
}

// MarshalJSON encodes the amount as an integer number of minor units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(m), 10)), nil
}

// UnmarshalJSON accepts an integer number of minor units.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("money must be an integer number of minor units: %w", err)
	}
	*m = Money(v)
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan implements sql.Scanner for BIGINT columns.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m = Money(v)
	case int32:
		*m = Money(v)
	case int:
		*m = Money(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("cannot scan %q into Money: %w", v, err)
		}
		*m = Money(n)
	case nil:
		*m = 0
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
	return nil
}
