package service

import (
	"sync"

	"isle_quest_backend/internal/model"
)

type proofKey struct {
	wallet  string
	questID string
}

// MemoryProofStore keeps proof records in process memory. A proof that has
// been approved and claimed has no further value, so records do not outlive
// the process.
type MemoryProofStore struct {
	mu     sync.RWMutex
	proofs map[proofKey]*model.QuestProof
}

func NewMemoryProofStore() *MemoryProofStore {
	return &MemoryProofStore{proofs: make(map[proofKey]*model.QuestProof)}
}

func (s *MemoryProofStore) Get(wallet, questID string) (*model.QuestProof, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[proofKey{wallet: wallet, questID: questID}]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (s *MemoryProofStore) Put(p *model.QuestProof) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.proofs[proofKey{wallet: p.Wallet, questID: p.QuestID}] = &cp
}
