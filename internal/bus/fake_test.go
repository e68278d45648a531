package bus

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken je hotový token s volitelnou chybou.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

// newPendingToken se nikdy nedokončí (simulace visícího brokera).
func newPendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

// fakeMessage implementuje mqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	payload string
}

// fakeBroker vyrábí fake klienty a pamatuje si, co s nimi kdo dělal.
type fakeBroker struct {
	mu sync.Mutex

	connectErrs  []error // chyby pro jednotlivé pokusy o connect (pak už úspěch)
	connectHang  bool
	subscribeErr error
	publishErr   error

	connectTimes []time.Time
	clients      []*fakeClient
	published    []published
	subscribed   map[string]byte
	handler      mqtt.MessageHandler
}

func (b *fakeBroker) factory(opts *mqtt.ClientOptions) mqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &fakeClient{broker: b, opts: opts}
	b.clients = append(b.clients, c)
	return c
}

func (b *fakeBroker) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connectTimes)
}

func (b *fakeBroker) lastClient() *fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return nil
	}
	return b.clients[len(b.clients)-1]
}

func (b *fakeBroker) publishedMessages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...)
}

func (b *fakeBroker) deliver(topic, payload string) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	h(nil, fakeMessage{topic: topic, payload: []byte(payload)})
}

type fakeClient struct {
	broker *fakeBroker
	opts   *mqtt.ClientOptions

	mu           sync.Mutex
	connected    bool
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() mqtt.Token {
	b := c.broker
	b.mu.Lock()
	attempt := len(b.connectTimes)
	b.connectTimes = append(b.connectTimes, time.Now())
	hang := b.connectHang
	var err error
	if attempt < len(b.connectErrs) {
		err = b.connectErrs[attempt]
	}
	b.mu.Unlock()

	if hang {
		return newPendingToken()
	}
	if err == nil {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	}
	return newToken(err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return newToken(b.publishErr)
	}
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	b.published = append(b.published, published{topic: topic, payload: s})
	return newToken(nil)
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: qos}, cb)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, cb mqtt.MessageHandler) mqtt.Token {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return newToken(b.subscribeErr)
	}
	b.subscribed = filters
	b.handler = cb
	return newToken(nil)
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token { return newToken(nil) }

func (c *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (b *fakeBroker) firstClient() *fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients[0]
}

// loseConnection zavolá ConnectionLostHandler jako skutečný paho klient.
func (c *fakeClient) loseConnection(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.opts.OnConnectionLost(c, err)
}
