package enums

// CartStatus is the lifecycle of a cart row. A cart converts exactly
// once, at checkout, and never goes back to active.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusConverted CartStatus = "converted"
)

// String implements fmt.Stringer.
func (c CartStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartStatus.
func (c CartStatus) IsValid() bool {
	switch c {
	case CartStatusActive, CartStatusConverted:
		return true
	}
	return false
}
