package chain

import "testing"

// PushForTest admits tx and panics on rejection.
func (m *Mempool) PushForTest(tx *Transaction) {
	if !m.AddTransaction(tx) {
		panic("mempool rejected " + tx.ID)
	}
}

func testAttestor(t *testing.T) *Attestor {
	t.Helper()
	a, err := NewAttestor([]byte("devnet-attestor-secret-0001"))
	if err != nil {
		t.Fatalf("attestor: %v", err)
	}
	return a
}
