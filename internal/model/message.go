package model

// PubMessage is an outbound message published by the client.
type PubMessage struct {
	Topic   string
	Payload []byte
	QoS     uint8
	Retain  bool
}
