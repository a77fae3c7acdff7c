package procurement

import "fmt"

// ReversionPolicy decides what happens to an ordered quote item when one of its orders leaves 発注済
type ReversionPolicy string

const (
	// ReversionRecompute keeps the item 発注済 while another referencing order is still 発注済
	ReversionRecompute ReversionPolicy = "recompute"
	// ReversionAlwaysReset resets the item to 未発注 regardless of other orders
	ReversionAlwaysReset ReversionPolicy = "always_reset"
)

// ParseReversionPolicy validates a configured policy name. Empty means recompute.
func ParseReversionPolicy(s string) (ReversionPolicy, error) {
	switch ReversionPolicy(s) {
	case "", ReversionRecompute:
		return ReversionRecompute, nil
	case ReversionAlwaysReset:
		return ReversionAlwaysReset, nil
	default:
		return "", fmt.Errorf("unknown reversion policy %q (want %s or %s)", s, ReversionRecompute, ReversionAlwaysReset)
	}
}
