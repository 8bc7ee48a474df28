package pool

import "github.com/oatsaysai/collect-in-telegram/internal/models"

// CalculateShareAmount computes the per-participant contribution from the
// pool configuration. For total pools the division rounds upward, so the sum
// of shares is never below the target: the system over-collects on indivisible
// amounts rather than under-collects.
func CalculateShareAmount(amountType models.AmountType, totalAmount, perPersonAmount int64, participantCount int) int64 {
	if amountType == models.AmountTypePerPerson {
		return perPersonAmount
	}
	// Callers guarantee participantCount >= 1; degrade to the full amount
	// rather than divide by zero if that invariant is ever broken.
	if participantCount <= 0 {
		return totalAmount
	}
	n := int64(participantCount)
	return (totalAmount + n - 1) / n
}
