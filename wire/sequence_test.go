package wire

import "testing"

func TestRedundancyMarking(t *testing.T) {
	tests := []struct {
		name  string
		seq   uint32
		group uint32
		isRed bool
	}{
		{name: "media zero", seq: 0, isRed: false},
		{name: "media max", seq: 0x7FFFFFFF, isRed: false},
		{name: "redundancy group zero", seq: RedundancySequence(0), group: 0, isRed: true},
		{name: "redundancy group 41", seq: RedundancySequence(41), group: 41, isRed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRedundancy(tt.seq); got != tt.isRed {
				t.Errorf("IsRedundancy(%#x) = %v, want %v", tt.seq, got, tt.isRed)
			}
			if tt.isRed {
				if got := RedundancyGroup(tt.seq); got != tt.group {
					t.Errorf("RedundancyGroup(%#x) = %d, want %d", tt.seq, got, tt.group)
				}
			}
		})
	}
}

func TestGroup(t *testing.T) {
	tests := []struct {
		seq  uint32
		span int
		want uint32
	}{
		{seq: 0, span: 5, want: 0},
		{seq: 4, span: 5, want: 0},
		{seq: 5, span: 5, want: 1},
		{seq: 14, span: 5, want: 2},
		{seq: 100, span: 10, want: 10},
		{seq: 7, span: 0, want: 0},
	}

	for _, tt := range tests {
		if got := Group(tt.seq, tt.span); got != tt.want {
			t.Errorf("Group(%d, %d) = %d, want %d", tt.seq, tt.span, got, tt.want)
		}
	}
}

func TestSeqDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b uint32
		want int32
	}{
		{name: "equal", a: 10, b: 10, want: 0},
		{name: "ahead", a: 15, b: 10, want: 5},
		{name: "behind", a: 10, b: 15, want: -5},
		{name: "wrap forward", a: 0, b: 0x7FFFFFFF, want: 1},
		{name: "wrap backward", a: 0x7FFFFFFF, b: 0, want: -1},
		{name: "wrap span", a: 3, b: 0x7FFFFFFD, want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeqDiff(tt.a, tt.b); got != tt.want {
				t.Errorf("SeqDiff(%#x, %#x) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if tt.want > 0 && !SeqNewer(tt.a, tt.b) {
				t.Errorf("SeqNewer(%#x, %#x) = false, want true", tt.a, tt.b)
			}
			if tt.want <= 0 && SeqNewer(tt.a, tt.b) {
				t.Errorf("SeqNewer(%#x, %#x) = true, want false", tt.a, tt.b)
			}
		})
	}
}

func TestNextSeq(t *testing.T) {
	if got := NextSeq(5); got != 6 {
		t.Errorf("NextSeq(5) = %d, want 6", got)
	}
	if got := NextSeq(0x7FFFFFFF); got != 0 {
		t.Errorf("NextSeq at ring end = %d, want 0", got)
	}
}
