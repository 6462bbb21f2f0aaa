package model

import "fmt"

// Tier is a charging station capacity class.
type Tier int

const (
	TierNone Tier = iota
	TierSmall
	TierMedium
	TierLarge
)

// Tiers lists the buildable tiers in increasing capacity.
var Tiers = []Tier{TierSmall, TierMedium, TierLarge}

var tierPorts = [...]int{0, 2, 4, 8}

// DefaultCapacity is the number of vehicles per day each tier can serve.
var DefaultCapacity = map[Tier]float64{
	TierSmall:  48,
	TierMedium: 96,
	TierLarge:  192,
}

// Valid reports whether t is one of the known tiers, including TierNone.
func (t Tier) Valid() bool { return t >= TierNone && t <= TierLarge }

// Ports returns the number of physical charging ports of the tier.
func (t Tier) Ports() int {
	if !t.Valid() {
		return 0
	}
	return tierPorts[t]
}

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	case TierLarge:
		return "large"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// TierForPorts maps a physical port count to the tier with the nearest port
// count. Ties resolve to the lower tier and counts above the largest tier map
// to TierLarge.
func TierForPorts(ports int) Tier {
	if ports <= 0 {
		return TierNone
	}
	best := TierSmall
	bestDiff := abs(ports - TierSmall.Ports())
	for _, t := range Tiers[1:] {
		if d := abs(ports - t.Ports()); d < bestDiff {
			best, bestDiff = t, d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ParseTier accepts a tier name or its number 0 to 3.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "none", "0":
		return TierNone, nil
	case "small", "1":
		return TierSmall, nil
	case "medium", "2":
		return TierMedium, nil
	case "large", "3":
		return TierLarge, nil
	}
	return TierNone, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, s)
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: tier %d", ErrInvalidInput, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name or number.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
