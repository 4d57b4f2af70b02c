package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// FixedPool caps the number of concurrently acquired connections to one
// endpoint and queues callers once the cap is reached. All pool state is
// owned by a per-pool dispatcher goroutine; operations arriving on other
// goroutines are trampolined onto it, so state transitions observe a total
// order without locks.
type FixedPool struct {
	endpoint Endpoint
	opts     PoolOptions
	handler  Handler

	// ops carries state mutations onto the dispatcher. It is unbuffered:
	// a successful send means the dispatcher has taken the operation.
	ops chan func()

	// done is closed when the pool shuts down and the dispatcher stops
	// accepting operations.
	done chan struct{}

	// acquiredCount and pendingCount are mutated only on the dispatcher
	// but may be read from any goroutine for diagnostics.
	acquiredCount int32
	pendingCount  int32
	idleCount     int32

	// lastActive is the unix-nano time of the last acquire or release.
	lastActive int64

	// Dispatcher-owned state.
	queue  []*acquireTask
	idle   *reservoir
	closed bool
}

// acquireTask is one queued waiter. The sink is buffered so a completion
// never blocks the dispatcher, and durable so a result delivered after the
// caller gave up is not lost.
type acquireTask struct {
	sink chan acquireResult

	// acquired records that this task holds a slot in acquiredCount. It
	// is monotonic: raised at most once, never cleared.
	acquired bool

	// cancelled records that the caller gave up while the task's dial was
	// in flight. Its slot is freed at cancel time; the eventual connection
	// is absorbed into the reservoir instead of completing the task.
	cancelled bool

	// done guards against double completion. Owned by the dispatcher,
	// except on the one path where the dispatcher has already shut down
	// and can no longer reach the task.
	done bool

	deadline time.Time
	timer    *time.Timer
}

type acquireResult struct {
	conn *Conn
	err  error
}

func (t *acquireTask) complete(c *Conn, err error) {
	if t.done {
		return
	}
	t.done = true
	t.sink <- acquireResult{conn: c, err: err}
}

// NewFixedPool returns an open pool for the given endpoint.
func NewFixedPool(endpoint Endpoint, opts PoolOptions) (*FixedPool, error) {
	if opts.Connect == nil {
		return nil, ErrInvalidConfig
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.HealthCheck == nil {
		opts.HealthCheck = ActiveHealthCheck
	}
	handler := opts.Handler
	if handler == nil {
		handler = NopHandler{}
	}

	p := &FixedPool{
		endpoint:   endpoint,
		opts:       opts,
		handler:    handler,
		ops:        make(chan func()),
		done:       make(chan struct{}),
		idle:       newReservoir(opts.SelectionOrder),
		lastActive: time.Now().UnixNano(),
	}
	go p.run()
	return p, nil
}

// Endpoint returns the remote address this pool connects to.
func (p *FixedPool) Endpoint() Endpoint { return p.endpoint }

// AcquiredCount returns the number of connections currently handed out.
// The value may be slightly stale when read off the dispatcher.
func (p *FixedPool) AcquiredCount() int {
	return int(atomic.LoadInt32(&p.acquiredCount))
}

// PendingCount returns the number of queued waiters.
func (p *FixedPool) PendingCount() int {
	return int(atomic.LoadInt32(&p.pendingCount))
}

// IdleCount returns the number of connections resting in the reservoir.
func (p *FixedPool) IdleCount() int {
	return int(atomic.LoadInt32(&p.idleCount))
}

// LastActiveTime returns the time of the last acquire or release.
func (p *FixedPool) LastActiveTime() time.Time {
	return time.Unix(0, atomic.LoadInt64(&p.lastActive))
}

// Closed reports whether the pool has shut down.
func (p *FixedPool) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// run is the dispatcher. It executes every operation that touches pool
// state, one at a time, until the pool closes; then it drains operations
// already submitted so none are stranded.
func (p *FixedPool) run() {
	for {
		select {
		case op := <-p.ops:
			op()
		case <-p.done:
			for {
				select {
				case op := <-p.ops:
					op()
				default:
					return
				}
			}
		}
	}
}

// do runs op on the dispatcher. It reports false when the pool has shut
// down and the operation was not accepted.
func (p *FixedPool) do(op func()) bool {
	select {
	case p.ops <- op:
		return true
	case <-p.done:
		return false
	}
}

func (p *FixedPool) touch() {
	atomic.StoreInt64(&p.lastActive, time.Now().UnixNano())
}

// Acquire obtains a connection, waiting in the pool's pending queue when
// the pool is at capacity. Cancelling the context abandons the wait: a
// still-queued task is removed from the queue, a task whose dial is in
// flight gives its capacity slot back immediately, and a connection the
// abandoned dial still produces is parked in the idle reservoir.
func (p *FixedPool) Acquire(ctx context.Context) (*Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t := &acquireTask{sink: make(chan acquireResult, 1)}
	if !p.do(func() { p.acquire0(t) }) {
		return nil, ErrPoolClosed
	}

	select {
	case r := <-t.sink:
		return r.conn, r.err
	case <-ctx.Done():
	}

	// Cancelled. cancel0 completes the task unless a result beat it to
	// the sink; either way exactly one result arrives. A connection that
	// won that race is handed straight back.
	p.do(func() { p.cancel0(t) })
	r := <-t.sink
	if r.conn != nil {
		p.Release(r.conn)
	}
	return nil, ctx.Err()
}

// acquire0 runs on the dispatcher.
func (p *FixedPool) acquire0(t *acquireTask) {
	if p.closed {
		t.complete(nil, ErrPoolClosed)
		return
	}
	p.touch()

	if int(atomic.LoadInt32(&p.acquiredCount)) < p.opts.MaxConnections {
		p.raiseAcquired(t)
		p.acquireInternal(t)
		return
	}

	if int(atomic.LoadInt32(&p.pendingCount)) >= p.opts.MaxPendingAcquires {
		t.complete(nil, ErrTooManyOutstanding)
		return
	}

	p.queue = append(p.queue, t)
	atomic.AddInt32(&p.pendingCount, 1)
	if p.opts.TimeoutAction != TimeoutNone {
		t.deadline = time.Now().Add(p.opts.AcquireTimeout)
		t.timer = time.AfterFunc(p.opts.AcquireTimeout, func() {
			p.do(p.timeoutExpired)
		})
	}
}

// cancel0 runs on the dispatcher.
func (p *FixedPool) cancel0(t *acquireTask) {
	if t.done {
		return
	}
	for i, qt := range p.queue {
		if qt != t {
			continue
		}
		copy(p.queue[i:], p.queue[i+1:])
		p.queue[len(p.queue)-1] = nil
		p.queue = p.queue[:len(p.queue)-1]
		atomic.AddInt32(&p.pendingCount, -1)
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.complete(nil, context.Canceled)
		return
	}

	// Not queued: the task was already promoted and its dial is in
	// flight. Free its slot now so waiting callers are served instead of
	// waiting out the abandoned dial; connectDone parks the connection in
	// the reservoir when it lands.
	t.cancelled = true
	t.complete(nil, context.Canceled)
	if t.acquired {
		p.decrementAndDispatch()
	}
}

// raiseAcquired reserves a capacity slot for the task. The flag guarantees
// the matching decrement happens exactly once across every failure path.
func (p *FixedPool) raiseAcquired(t *acquireTask) {
	if t.acquired {
		return
	}
	t.acquired = true
	atomic.AddInt32(&p.acquiredCount, 1)
}

// acquireInternal satisfies the task from the reservoir when possible and
// otherwise dials a new connection. Runs on the dispatcher.
func (p *FixedPool) acquireInternal(t *acquireTask) {
	for {
		c := p.idle.take()
		if c == nil {
			break
		}
		atomic.AddInt32(&p.idleCount, -1)
		if p.opts.HealthCheck(c) {
			c.setState(StateAcquired)
			p.handler.ConnAcquired(c)
			t.complete(c, nil)
			return
		}
		// Unusable while idle; drop it and keep looking.
		c.closeTransport()
	}

	// Reservoir miss: dial off the dispatcher and trampoline the result
	// back.
	go func() {
		nc, err := p.opts.Connect(p.endpoint)
		if p.do(func() { p.connectDone(t, nc, err) }) {
			return
		}
		// The pool shut down while the dial was in flight. The dispatcher
		// can no longer reach this task, so complete it here.
		if err == nil {
			nc.Close()
		}
		t.complete(nil, ErrPoolClosed)
	}()
}

// connectDone reconciles counters with the outcome of a dial and forwards
// the result to the waiting caller. Runs on the dispatcher.
func (p *FixedPool) connectDone(t *acquireTask, nc net.Conn, err error) {
	if p.closed {
		if err == nil {
			nc.Close()
		}
		t.complete(nil, ErrPoolClosed)
		return
	}

	if t.cancelled {
		// The slot was freed when the caller cancelled; the counters hold
		// no reservation for this task anymore. A successful dial still
		// yields a usable connection, so park it in the reservoir.
		if err != nil {
			return
		}
		c := newConn(p, nc)
		if !p.opts.HealthCheck(c) {
			c.closeTransport()
			return
		}
		p.handler.ConnCreated(c)
		c.setState(StateIdle)
		p.idle.offer(c)
		atomic.AddInt32(&p.idleCount, 1)
		return
	}

	if err != nil {
		p.reconcile(t)
		t.complete(nil, &ConnectError{Endpoint: p.endpoint, Err: err})
		return
	}

	c := newConn(p, nc)
	if !p.opts.HealthCheck(c) {
		c.closeTransport()
		p.reconcile(t)
		t.complete(nil, ErrUnhealthyConn)
		return
	}
	p.handler.ConnCreated(c)
	p.handler.ConnAcquired(c)
	t.complete(c, nil)
}

// reconcile frees the slot a failed task may hold, then serves waiters.
// A task that never raised its flag reserved nothing, so only the queue
// is run.
func (p *FixedPool) reconcile(t *acquireTask) {
	if t.acquired {
		p.decrementAndDispatch()
	} else {
		p.dispatch()
	}
}

// Release hands a connection back to the pool. A healthy connection goes
// to the idle reservoir; an unhealthy one is closed. Either way the freed
// slot is offered to the oldest waiter.
func (p *FixedPool) Release(c *Conn) error {
	return p.release(c, false)
}

// Discard hands a connection back and unconditionally closes it, freeing
// its slot for the next waiter. Use it when the caller knows the
// connection is poisoned, e.g. after a mid-request transport error.
func (p *FixedPool) Discard(c *Conn) error {
	return p.release(c, true)
}

func (p *FixedPool) release(c *Conn, discard bool) error {
	if c == nil || c.pool != p {
		return ErrWrongPool
	}

	sink := make(chan error, 1)
	if !p.do(func() { p.release0(c, discard, sink) }) {
		// Handed-out connections are not torn down by close; they are
		// closed here, at return time.
		c.closeTransport()
		return ErrPoolClosed
	}
	return <-sink
}

// release0 runs on the dispatcher.
func (p *FixedPool) release0(c *Conn, discard bool, sink chan error) {
	if p.closed {
		c.closeTransport()
		sink <- ErrPoolClosed
		return
	}
	if c.State() != StateAcquired {
		sink <- ErrNotAcquired
		return
	}
	p.touch()

	if discard || (p.opts.ReleaseHealthCheck && !p.opts.HealthCheck(c)) {
		c.closeTransport()
		p.decrementAndDispatch()
		sink <- nil
		return
	}

	c.setState(StateIdle)
	p.handler.ConnReleased(c)
	p.idle.offer(c)
	atomic.AddInt32(&p.idleCount, 1)
	p.decrementAndDispatch()
	sink <- nil
}

// decrementAndDispatch frees one capacity slot, then serves waiters. The
// decrement happens first so a caller whose completion immediately
// re-acquires sees the freed slot.
func (p *FixedPool) decrementAndDispatch() {
	if n := atomic.AddInt32(&p.acquiredCount, -1); n < 0 {
		panic("transport: negative acquired connection count")
	}
	p.dispatch()
}

// dispatch promotes queued waiters while capacity remains. Runs on the
// dispatcher.
func (p *FixedPool) dispatch() {
	for int(atomic.LoadInt32(&p.acquiredCount)) < p.opts.MaxConnections && len(p.queue) > 0 {
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]

		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		if n := atomic.AddInt32(&p.pendingCount, -1); n < 0 {
			panic("transport: negative pending acquire count")
		}

		p.raiseAcquired(t)
		p.acquireInternal(t)
	}
}

// timeoutExpired ages out queued waiters whose deadline has passed. Runs
// on the dispatcher. Deadlines are compared with signed arithmetic on the
// monotonic clock so wrap cannot strand a waiter.
func (p *FixedPool) timeoutExpired() {
	now := time.Now()
	for len(p.queue) > 0 {
		t := p.queue[0]
		if now.Sub(t.deadline) < 0 {
			break
		}
		p.queue[0] = nil
		p.queue = p.queue[1:]
		atomic.AddInt32(&p.pendingCount, -1)
		t.timer = nil

		switch p.opts.TimeoutAction {
		case TimeoutFail:
			t.complete(nil, ErrAcquireTimeout)
		case TimeoutNew:
			// Raise the flag without re-checking capacity. The timed-out
			// waiter gets a fresh connection and the pool runs over its
			// cap until the extra connections are released.
			p.raiseAcquired(t)
			p.acquireInternal(t)
		}
	}
}

// Close shuts the pool down and waits for the teardown to finish.
func (p *FixedPool) Close() error {
	return <-p.CloseAsync()
}

// CloseAsync shuts the pool down: queued waiters complete with
// ErrPoolClosed, timers are cancelled, and the idle reservoir is torn down
// on a separate goroutine so blocking socket closes cannot deadlock the
// dispatcher. Connections currently handed out are closed when released.
// Closing an already-closed pool succeeds immediately.
func (p *FixedPool) CloseAsync() <-chan error {
	sink := make(chan error, 1)
	if !p.do(func() { p.close0(sink) }) {
		sink <- nil
	}
	return sink
}

// close0 runs on the dispatcher.
func (p *FixedPool) close0(sink chan error) {
	if p.closed {
		sink <- nil
		return
	}
	p.closed = true

	for _, t := range p.queue {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.complete(nil, ErrPoolClosed)
	}
	p.queue = nil
	atomic.StoreInt32(&p.pendingCount, 0)
	atomic.StoreInt32(&p.acquiredCount, 0)

	idle := p.idle.drain()
	atomic.StoreInt32(&p.idleCount, 0)

	// Stop accepting operations. The dispatcher drains what was already
	// submitted and exits.
	close(p.done)

	go func() {
		for _, c := range idle {
			c.closeTransport()
		}
		sink <- nil
	}()
}
