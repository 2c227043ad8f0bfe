package domain

import "math"

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	if v < 0 {
		return -math.Floor(-v*100+0.5) / 100
	}
	return math.Floor(v*100+0.5) / 100
}

// Cents converts an amount to an integer number of cents for exact
// comparison. All equality checks on money go through this.
func Cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// DerivePaymentType classifies the payment split by which channels carry a
// positive amount. A zero split counts as cash.
func DerivePaymentType(cash, upi float64) PaymentType {
	switch {
	case Cents(cash) > 0 && Cents(upi) > 0:
		return PaymentMixed
	case Cents(upi) > 0:
		return PaymentUPI
	default:
		return PaymentCash
	}
}

// PaidInFull reports whether the payment split covers the total exactly.
func PaidInFull(cash, upi, total float64) bool {
	return Cents(cash)+Cents(upi) == Cents(total)
}
