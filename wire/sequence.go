package wire

// The sequence space is partitioned by the high bit: media packets use the
// lower half and wrap within it, redundancy symbols set the high bit and
// carry their group number in the remaining 31 bits.

const (
	// redundancyBit marks a sequence number as a redundancy symbol.
	redundancyBit = uint32(1) << 31

	// seqMask selects the 31-bit media sequence ring.
	seqMask = redundancyBit - 1

	// seqHalf is the half-space threshold for wraparound comparisons.
	seqHalf = uint32(1) << 30
)

// IsRedundancy reports whether seq identifies a redundancy symbol.
func IsRedundancy(seq uint32) bool {
	return seq&redundancyBit != 0
}

// RedundancySequence builds the wire sequence number for a redundancy
// symbol of the given group.
func RedundancySequence(group uint32) uint32 {
	return redundancyBit | (group & seqMask)
}

// RedundancyGroup extracts the group number from a redundancy sequence.
func RedundancyGroup(seq uint32) uint32 {
	return seq & seqMask
}

// Group returns the FEC group a media sequence number belongs to for the
// given span (media packets per group).
func Group(seq uint32, span int) uint32 {
	if span <= 0 {
		return 0
	}
	return (seq & seqMask) / uint32(span)
}

// SeqDiff returns the signed distance a-b on the 31-bit media ring.
// The result is positive when a is newer than b.
func SeqDiff(a, b uint32) int32 {
	d := (a - b) & seqMask
	if d >= seqHalf {
		return int32(d) - int32(seqMask) - 1
	}
	return int32(d)
}

// SeqNewer reports whether a is strictly newer than b, accounting for
// wraparound within the media ring.
func SeqNewer(a, b uint32) bool {
	return SeqDiff(a, b) > 0
}

// NextSeq returns the media sequence following seq on the ring.
func NextSeq(seq uint32) uint32 {
	return (seq + 1) & seqMask
}

// SeqAdd returns seq advanced by n positions on the media ring.
func SeqAdd(seq uint32, n int32) uint32 {
	return (seq + uint32(n)) & seqMask
}
