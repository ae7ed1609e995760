package natscache

import (
	"time"

	"github.com/nats-io/nats.go"
)

type stubKeyValue struct {
	rev     uint64
	entries map[string]*stubEntry

	getErr    error
	putErr    error
	updateErr error
	listErr   error

	// conflicts makes the next n Update calls fail with ErrKeyExists.
	conflicts int
}

func newStubKeyValue() *stubKeyValue {
	return &stubKeyValue{entries: make(map[string]*stubEntry)}
}

func (s *stubKeyValue) Get(key string) (nats.KeyValueEntry, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	if entry.op != nats.KeyValuePut {
		return nil, nats.ErrKeyDeleted
	}
	cp := *entry
	return &cp, nil
}

func (s *stubKeyValue) Put(key string, value []byte) (uint64, error) {
	if s.putErr != nil {
		return 0, s.putErr
	}
	s.rev++
	s.entries[key] = &stubEntry{
		key:      key,
		value:    append([]byte(nil), value...),
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValuePut,
	}
	return s.rev, nil
}

func (s *stubKeyValue) Update(key string, value []byte, last uint64) (uint64, error) {
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	if s.conflicts > 0 {
		s.conflicts--
		s.rev++
		if e, ok := s.entries[key]; ok {
			e.revision = s.rev
		}
		return 0, nats.ErrKeyExists
	}
	existing, ok := s.entries[key]
	if !ok || existing.op != nats.KeyValuePut {
		return 0, nats.ErrKeyNotFound
	}
	if existing.revision != last {
		return 0, nats.ErrKeyExists
	}
	return s.Put(key, value)
}

func (s *stubKeyValue) Delete(key string, _ ...nats.DeleteOpt) error {
	s.rev++
	s.entries[key] = &stubEntry{key: key, revision: s.rev, created: time.Now(), op: nats.KeyValueDelete}
	return nil
}

func (s *stubKeyValue) Purge(key string, _ ...nats.DeleteOpt) error {
	delete(s.entries, key)
	return nil
}

func (s *stubKeyValue) ListKeys(_ ...nats.WatchOpt) (nats.KeyLister, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	ch := make(chan string, len(s.entries))
	for key, e := range s.entries {
		if e.op == nats.KeyValuePut {
			ch <- key
		}
	}
	close(ch)
	return &stubLister{keys: ch}, nil
}

type stubEntry struct {
	key      string
	value    []byte
	revision uint64
	created  time.Time
	op       nats.KeyValueOp
}

func (e *stubEntry) Bucket() string             { return "cache" }
func (e *stubEntry) Key() string                { return e.key }
func (e *stubEntry) Value() []byte              { return append([]byte(nil), e.value...) }
func (e *stubEntry) Revision() uint64           { return e.revision }
func (e *stubEntry) Created() time.Time         { return e.created }
func (e *stubEntry) Delta() uint64              { return 0 }
func (e *stubEntry) Operation() nats.KeyValueOp { return e.op }

type stubLister struct {
	keys chan string
}

func (l *stubLister) Keys() <-chan string { return l.keys }
func (l *stubLister) Stop() error         { return nil }

func (l *stubLister) Error() <-chan error {
	ch := make(chan error)
	close(ch)
	return ch
}
