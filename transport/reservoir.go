package transport

import "container/list"

// reservoir holds the connections a pool owns but has not handed out.
// LIFO selection returns the most recently offered connection (warmest
// socket); FIFO returns the oldest. All operations are O(1) and run only
// on the owning pool's dispatcher.
type reservoir struct {
	conns *list.List
	order SelectionOrder
}

func newReservoir(order SelectionOrder) *reservoir {
	return &reservoir{conns: list.New(), order: order}
}

func (r *reservoir) len() int { return r.conns.Len() }

// offer inserts c into the reservoir.
func (r *reservoir) offer(c *Conn) {
	c.idleElem = r.conns.PushBack(c)
}

// take removes and returns a connection, or nil when the reservoir is empty.
func (r *reservoir) take() *Conn {
	var e *list.Element
	if r.order == SelectFIFO {
		e = r.conns.Front()
	} else {
		e = r.conns.Back()
	}
	if e == nil {
		return nil
	}
	c := r.conns.Remove(e).(*Conn)
	c.idleElem = nil
	return c
}

// discard drops c from the reservoir without returning it.
func (r *reservoir) discard(c *Conn) {
	if c.idleElem == nil {
		return
	}
	r.conns.Remove(c.idleElem)
	c.idleElem = nil
}

// drain empties the reservoir and returns the removed connections.
func (r *reservoir) drain() []*Conn {
	conns := make([]*Conn, 0, r.conns.Len())
	for e := r.conns.Front(); e != nil; e = e.Next() {
		c := e.Value.(*Conn)
		c.idleElem = nil
		conns = append(conns, c)
	}
	r.conns.Init()
	return conns
}
