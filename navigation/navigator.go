package navigation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Port performs a navigation. In a browser this assigns the location; the CLI
// prints it.
type Port interface {
	GoTo(route string)
}

// PortFunc adapts a function to a Port.
type PortFunc func(route string)

func (f PortFunc) GoTo(route string) { f(route) }

const defaultSettleWindow = 250 * time.Millisecond

// Navigator wraps a Port, tracks the current location and collapses repeated
// navigations to the same target issued within the settle window into one.
type Navigator struct {
	port    Port
	window  time.Duration
	nowTime func() time.Time
	logger  zerolog.Logger

	mu       sync.Mutex
	location string
	lastTo   string
	lastAt   time.Time
}

type NavigatorOption func(*Navigator)

func WithSettleWindow(d time.Duration) NavigatorOption {
	return func(n *Navigator) {
		n.window = d
	}
}

func WithNowTime(nowFunc func() time.Time) NavigatorOption {
	return func(n *Navigator) {
		n.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) NavigatorOption {
	return func(n *Navigator) {
		n.logger = logger
	}
}

// WithLocation sets the starting location.
func WithLocation(location string) NavigatorOption {
	return func(n *Navigator) {
		n.location = location
	}
}

func NewNavigator(port Port, options ...NavigatorOption) *Navigator {
	n := &Navigator{
		port:    port,
		window:  defaultSettleWindow,
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(n)
	}
	return n
}

// GoTo navigates to route unless the same navigation was just issued.
func (n *Navigator) GoTo(route string) {
	n.mu.Lock()
	now := n.nowTime()
	if route == n.lastTo && now.Sub(n.lastAt) < n.window {
		n.mu.Unlock()
		n.logger.Debug().Str("route", route).Msg("duplicate navigation suppressed")
		return
	}
	n.lastTo = route
	n.lastAt = now
	n.location = route
	n.mu.Unlock()

	n.logger.Debug().Str("route", route).Msg("navigating")
	n.port.GoTo(route)
}

// SetLocation records a navigation the visitor made themselves.
func (n *Navigator) SetLocation(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = location
}

func (n *Navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}
