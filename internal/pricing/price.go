// Package pricing maps a participant count to the total enrollment fee.
package pricing

import "fmt"

// Currency of every amount returned by Price.
const Currency = "CLP"

// MaxParticipants is the largest group a single reservation may enroll.
const MaxParticipants = 3

// tiers holds the fee of the first, second and third participant.  Each
// additional participant in the same reservation is cheaper.
var tiers = [MaxParticipants]int64{40000, 35000, 30000}

// Price returns the total fee for n participants: 40000, 75000 or 105000.
// Counts outside 1..MaxParticipants are rejected, never clamped.
func Price(n int) (int64, error) {
	if n < 1 || n > MaxParticipants {
		return 0, fmt.Errorf("pricing: participant count %d out of range 1..%d", n, MaxParticipants)
	}
	var total int64
	for i := 0; i < n; i++ {
		total += tiers[i]
	}
	return total, nil
}
