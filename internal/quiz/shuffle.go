package quiz

// Shuffle returns a Fisher-Yates permutation of items driven by seed.
// The input slice is never modified. Each swap draws from a freshly derived seed, so
// one draw's artifacts do not compound into the next.
func Shuffle[T any](items []T, seed string) []T {
	shuffled := make([]T, len(items))
	copy(shuffled, items)

	current := seed
	for i := len(shuffled) - 1; i > 0; i-- {
		current = stepSeed(current, i)
		j := int(SeededRandom(current) * float64(i+1))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}
