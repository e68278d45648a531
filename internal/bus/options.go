package bus

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type options struct {
	newClient ClientFactory
	now       func() time.Time
}

// Option upravuje Listener nebo Publisher.
type Option func(*options)

// WithClientFactory nahradí mqtt.NewClient (používají testy).
func WithClientFactory(f ClientFactory) Option {
	return func(o *options) { o.newClient = f }
}

// WithClock nahradí time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		newClient: mqtt.NewClient,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
