package strategy

// SafeSize computes the notional for an autonomous entry: the configured
// fraction of the available balance, clamped by the position cap and by
// the balance itself. Never negative. Manual trades do not pass through
// here.
func SafeSize(balance, riskFraction, cap float64) float64 {
	size := balance * riskFraction
	if size > cap {
		size = cap
	}
	if size > balance {
		size = balance
	}
	if size < 0 {
		return 0
	}
	return size
}
