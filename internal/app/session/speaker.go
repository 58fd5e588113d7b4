package session

// ActiveSpeaker picks the loudest identity whose level clears the noise
// threshold, zero when nobody does. Ties break toward the lowest
// identity so the result is stable between snapshots.
func ActiveSpeaker(levels map[uint32]int, threshold int) uint32 {
	var best uint32
	bestLevel := threshold
	for uid, level := range levels {
		if level > bestLevel || (level == bestLevel && level > threshold && uid < best) {
			best = uid
			bestLevel = level
		}
	}
	if bestLevel <= threshold {
		return 0
	}
	return best
}
