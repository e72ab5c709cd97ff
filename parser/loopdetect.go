package parser

// loopDetector tracks which object numbers are being resolved right now.
// Each traversal opens a scope with Mark and closes it with ClearToMark;
// Present searches every open scope, so a nested load sees the numbers of
// all its ancestors but two sibling loads never see each other.
type loopDetector struct {
	scopes []map[int]struct{}
}

func (d *loopDetector) Mark() {
	d.scopes = append(d.scopes, make(map[int]struct{}))
}

func (d *loopDetector) ClearToMark() {
	if n := len(d.scopes); n > 0 {
		d.scopes = d.scopes[:n-1]
	}
}

func (d *loopDetector) Add(num int) {
	if n := len(d.scopes); n > 0 {
		d.scopes[n-1][num] = struct{}{}
	}
}

func (d *loopDetector) Present(num int) bool {
	for _, scope := range d.scopes {
		if _, ok := scope[num]; ok {
			return true
		}
	}
	return false
}

func (d *loopDetector) Depth() int { return len(d.scopes) }
