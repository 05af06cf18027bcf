package clock

import "time"

// Clock lets services stamp times that tests can pin.
type Clock interface {
	Now() time.Time
}

type system struct{}

func NewSystem() Clock { return system{} }

func (system) Now() time.Time { return time.Now().UTC() }

// Fixed returns the same instant until advanced.
type Fixed struct {
	t time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t.UTC()} }

func (f *Fixed) Now() time.Time { return f.t }

func (f *Fixed) Advance(d time.Duration) { f.t = f.t.Add(d) }
