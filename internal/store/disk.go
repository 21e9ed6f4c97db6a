// Package store persists the client's outbound queue so messages published
// while offline survive a restart.
package store

import (
	"encoding/binary"
	"errors"

	"github.com/RoanBrand/mqttmsgr/internal/model"
	"github.com/dgraph-io/badger"
)

var errCorrupt = errors.New("store: corrupt queued message")

var queuePrefix = []byte("q")

type Disk struct {
	db *badger.DB
}

func NewDisk(dir string) (*Disk, error) {
	opts := badger.DefaultOptions
	opts.Dir, opts.ValueDir = dir, dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Disk{db: db}, nil
}

func (s *Disk) Close() error {
	return s.db.Close()
}

func queueKey(seq uint64) []byte {
	key := make([]byte, len(queuePrefix)+8)
	copy(key, queuePrefix)
	binary.BigEndian.PutUint64(key[len(queuePrefix):], seq)
	return key
}

// Load calls iter for every queued message, in sequence order.
func (s *Disk) Load(iter func(seq uint64, m *model.PubMessage)) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(queuePrefix); it.ValidForPrefix(queuePrefix); it.Next() {
			item := it.Item()
			k := item.Key()
			if len(k) != len(queuePrefix)+8 {
				continue
			}
			val, err := item.Value()
			if err != nil {
				return err
			}

			m, err := decodeMessage(val)
			if err != nil {
				return err
			}
			iter(binary.BigEndian.Uint64(k[len(queuePrefix):]), m)
		}
		return nil
	})
}

// Put stores m under seq.
func (s *Disk) Put(seq uint64, m *model.PubMessage) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(queueKey(seq), encodeMessage(m))
	})
}

// Delete removes the message stored under seq, if any.
func (s *Disk) Delete(seq uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(queueKey(seq))
	})
}

// Stored layout: PUBLISH style flags byte, 2 byte topic length, topic, payload.
func encodeMessage(m *model.PubMessage) []byte {
	flags := m.QoS << 1
	if m.Retain {
		flags |= model.FlagRetain
	}

	b := make([]byte, 3, 3+len(m.Topic)+len(m.Payload))
	b[0] = flags
	binary.BigEndian.PutUint16(b[1:], uint16(len(m.Topic)))
	b = append(b, m.Topic...)
	return append(b, m.Payload...)
}

// decodeMessage copies out of val, which badger only guarantees for the
// lifetime of the transaction.
func decodeMessage(val []byte) (*model.PubMessage, error) {
	if len(val) < 3 {
		return nil, errCorrupt
	}
	tl := int(binary.BigEndian.Uint16(val[1:]))
	if len(val) < 3+tl {
		return nil, errCorrupt
	}

	m := &model.PubMessage{
		Topic:  string(val[3 : 3+tl]),
		QoS:    (val[0] & model.FlagQoS) >> 1,
		Retain: val[0]&model.FlagRetain != 0,
	}
	if rest := val[3+tl:]; len(rest) > 0 {
		m.Payload = make([]byte, len(rest))
		copy(m.Payload, rest)
	}
	return m, nil
}
