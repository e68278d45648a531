package main

import "fmt"

// asyncPublisher umí odeslat zprávu bez čekání na potvrzení (v produkci *bus.Publisher).
type asyncPublisher interface {
	PublishAsync(topic string, payload []byte)
}

// MqttLogWriter implementuje rozhraní io.Writer.
// Vše, co se do něj zapíše, se odešle do MQTT topicu logs/<služba>.
type MqttLogWriter struct {
	pub   asyncPublisher
	topic string
}

// NewMqttLogWriter vytvoří writer pro topic "logs/<serviceName>".
func NewMqttLogWriter(pub asyncPublisher, serviceName string) *MqttLogWriter {
	return &MqttLogWriter{
		pub:   pub,
		topic: fmt.Sprintf("logs/%s", serviceName),
	}
}

// Write volá slog pro každý řádek logu. Nikdy nevrací chybu, výpadek brokeru
// nesmí zastavit logování na stdout.
func (w *MqttLogWriter) Write(p []byte) (n int, err error) {
	// slog buffer po návratu znovu použije, musíme kopírovat.
	payload := make([]byte, len(p))
	copy(payload, p)

	w.pub.PublishAsync(w.topic, payload)
	return len(p), nil
}
