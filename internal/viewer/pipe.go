package viewer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const pipeBuffer = 64

// Pipe is one end of an in-memory viewer context. Both ends share an ID and
// close together.
type Pipe struct {
	id   string
	url  string
	in   <-chan Message
	out  chan<- Message
	done chan struct{}
	once *sync.Once
}

// NewPipe returns two connected ends. The first is handed to Deliver; the
// second plays the viewer.
func NewPipe(url string) (*Pipe, *Pipe) {
	var (
		id   = uuid.NewString()
		a2b  = make(chan Message, pipeBuffer)
		b2a  = make(chan Message, pipeBuffer)
		done = make(chan struct{})
		once = &sync.Once{}
	)
	local := &Pipe{id: id, url: url, in: b2a, out: a2b, done: done, once: once}
	remote := &Pipe{id: id, url: url, in: a2b, out: b2a, done: done, once: once}
	return local, remote
}

func (p *Pipe) ID() string  { return p.id }
func (p *Pipe) URL() string { return p.url }

func (p *Pipe) Send(ctx context.Context, msg Message) error {
	select {
	case <-p.done:
		return ErrContextClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return ErrContextClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipe) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return Message{}, ErrContextClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// PipeOpener opens Pipe contexts. The viewer ends are published on
// Opened, which must be drained.
type PipeOpener struct {
	opened chan *Pipe

	mu  sync.Mutex
	err error
}

// NewPipeOpener creates an opener whose viewer-side channel holds up to
// backlog unclaimed contexts.
func NewPipeOpener(backlog int) *PipeOpener {
	return &PipeOpener{opened: make(chan *Pipe, backlog)}
}

// Fail makes subsequent Open calls fail with err; nil restores them.
func (o *PipeOpener) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *PipeOpener) Open(ctx context.Context, reportURL string) (Context, error) {
	o.mu.Lock()
	err := o.err
	o.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrViewerOpenFailed, err)
	}

	local, remote := NewPipe(reportURL)
	select {
	case o.opened <- remote:
		return local, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrViewerOpenFailed, ctx.Err())
	}
}

// Opened yields the viewer end of every context opened so far.
func (o *PipeOpener) Opened() <-chan *Pipe {
	return o.opened
}
