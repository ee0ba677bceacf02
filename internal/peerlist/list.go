package peerlist

// List is a singly-linked, insertion-ordered collection of Peers. A plain
// slice would make mid-list removal during fan-out iteration awkward to
// express with "continue from successor" semantics (spec.md §4.5); a
// hand-rolled list makes that the natural shape of Remove's return value.
type List struct {
	head *Peer
	tail *Peer
	n    int
}

// PushBack appends p to the end of the list.
func (l *List) PushBack(p *Peer) {
	p.Next = nil
	if l.tail == nil {
		l.head = p
		l.tail = p
	} else {
		l.tail.Next = p
		l.tail = p
	}
	l.n++
}

// Head returns the first peer, or nil if the list is empty.
func (l *List) Head() *Peer { return l.head }

// Len returns the number of peers currently in the list.
func (l *List) Len() int { return l.n }

// Remove unlinks p from the list and returns p's successor, so callers
// iterating the list can rewrite their cursor in place:
//
//	for cur := list.Head(); cur != nil; {
//	    if shouldRemove(cur) {
//	        cur = list.Remove(cur)
//	        continue
//	    }
//	    cur = cur.Next
//	}
//
// Removing a peer not present in the list is a no-op and returns nil.
func (l *List) Remove(p *Peer) *Peer {
	if p == nil {
		return nil
	}
	successor := p.Next

	if l.head == p {
		l.head = p.Next
		if l.tail == p {
			l.tail = nil
		}
		p.Next = nil
		l.n--
		return successor
	}

	prev := l.head
	for prev != nil && prev.Next != p {
		prev = prev.Next
	}
	if prev == nil {
		// p is not in this list.
		return nil
	}
	prev.Next = p.Next
	if l.tail == p {
		l.tail = prev
	}
	p.Next = nil
	l.n--
	return successor
}

// Each calls fn for every peer currently in the list, in insertion order.
// fn must not remove peers from the list; use the Remove-returns-successor
// pattern directly when removal during iteration is required.
func (l *List) Each(fn func(*Peer)) {
	for cur := l.head; cur != nil; cur = cur.Next {
		fn(cur)
	}
}
