package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FakePinner records pinned payloads and hands out deterministic fake
// CIDs. Set FailNext to make the next Pin call fail once.
type FakePinner struct {
	mu       sync.Mutex
	seq      int64
	FailNext bool
	Payloads []map[string]interface{}
}

func (p *FakePinner) Pin(_ context.Context, name string, payload map[string]interface{}) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailNext {
		p.FailNext = false
		return "", "", fmt.Errorf("fake pinner: injected failure for %q", name)
	}
	p.seq++
	// Deep-ish copy so later payload mutation by the caller does not
	// leak into the recorded snapshot.
	copied := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	p.Payloads = append(p.Payloads, copied)
	hash := fmt.Sprintf("QmFake%06d", p.seq)
	return hash, "https://gateway.pinata.cloud/ipfs/" + hash, nil
}

// PinCount returns how many payloads were pinned.
func (p *FakePinner) PinCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Payloads)
}

// FakeAccountSource returns sequential fake addresses and mnemonics.
type FakeAccountSource struct {
	seq atomic.Int64
	Err error
}

func (a *FakeAccountSource) GenerateAccount() (string, string, error) {
	if a.Err != nil {
		return "", "", a.Err
	}
	n := a.seq.Add(1)
	address := fmt.Sprintf("FAKEADDR%050d", n)
	mnemonicPhrase := fmt.Sprintf("abandon ability able about above absent absorb abstract absurd abuse access accident account accuse achieve acid acoustic acquire across act action actor actress word%d", n)
	return address, mnemonicPhrase, nil
}

// MemorySecretStore keeps secrets in a map. FailPut makes Put fail,
// which exercises the insert-rollback path in storage.
type MemorySecretStore struct {
	mu      sync.Mutex
	FailPut bool
	m       map[int64]string
}

func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{m: make(map[int64]string)}
}

func (s *MemorySecretStore) Put(_ context.Context, characterID int64, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut {
		return fmt.Errorf("memory secret store: injected failure")
	}
	s.m[characterID] = secret
	return nil
}

func (s *MemorySecretStore) Get(_ context.Context, characterID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.m[characterID]
	if !ok {
		return "", fmt.Errorf("memory secret store: no secret for %d", characterID)
	}
	return secret, nil
}

func (s *MemorySecretStore) Delete(_ context.Context, characterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, characterID)
	return nil
}

// Len returns how many secrets are stored.
func (s *MemorySecretStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
