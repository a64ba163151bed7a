package core_test

import (
	"errors"
	"testing"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
)

func newKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

func transferLike(payer, to core.Pubkey) core.Instruction {
	return core.Instruction{
		ProgramID: core.SystemProgramID,
		Accounts: []core.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: []byte(`{"kind":"transfer","lamports":1}`),
	}
}

// TestPubkeyText verifies base58 round-tripping of addresses.
func TestPubkeyText(t *testing.T) {
	k := newKey(t)
	p := core.PubkeyOf(k)
	got, err := core.PubkeyFromString(p.String())
	if err != nil {
		t.Fatalf("PubkeyFromString: %v", err)
	}
	if got != p {
		t.Errorf("round trip: got %s want %s", got, p)
	}
	if _, err := core.PubkeyFromString("0OIl"); err == nil {
		t.Error("invalid base58 should fail")
	}
	if core.SystemProgramID.String() != "11111111111111111111111111111111" {
		t.Errorf("system program id: got %s", core.SystemProgramID)
	}
	if core.ProgramID("a") == core.ProgramID("b") {
		t.Error("program ids should differ by name")
	}
}

// TestTransactionSignVerify ensures signing covers the message and every
// signer an instruction requires.
func TestTransactionSignVerify(t *testing.T) {
	payer := newKey(t)
	payerKey := core.PubkeyOf(payer)
	tx := core.NewTransaction(payerKey, transferLike(payerKey, core.ProgramID("to")))
	tx.Sign(payer)
	if tx.ID == "" || tx.ID != tx.Hash() {
		t.Fatalf("tx ID should equal its hash, got %q", tx.ID)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	tx.Instructions[0].Data = []byte(`{"kind":"transfer","lamports":999}`)
	if err := tx.Verify(); err == nil {
		t.Error("tampered tx should fail verification")
	}
}

func TestTransactionMissingSigner(t *testing.T) {
	payer, other := newKey(t), newKey(t)
	payerKey := core.PubkeyOf(payer)
	ix := transferLike(core.PubkeyOf(other), payerKey)
	tx := core.NewTransaction(payerKey, ix)
	tx.Sign(payer)
	if err := tx.Verify(); err == nil {
		t.Fatal("instruction signer without signature should fail")
	}
	tx.Sign(other)
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify after co-signing: %v", err)
	}
	if !tx.Signers()[core.PubkeyOf(other)] {
		t.Error("co-signer missing from Signers()")
	}
	tx.Sign(other)
	if len(tx.Signatures) != 2 {
		t.Errorf("re-signing should replace, got %d signatures", len(tx.Signatures))
	}
}

func TestTransactionFeePayerMustSign(t *testing.T) {
	payer, other := newKey(t), newKey(t)
	tx := core.NewTransaction(core.PubkeyOf(payer), core.Instruction{ProgramID: core.SystemProgramID})
	tx.Sign(other)
	if err := tx.Verify(); err == nil {
		t.Error("unsigned fee payer should fail verification")
	}
}

// TestMempool verifies add/remove/pending operations.
func TestMempool(t *testing.T) {
	mp := core.NewMempool(2)
	payer := newKey(t)
	payerKey := core.PubkeyOf(payer)

	var ids []string
	for i := 0; i < 2; i++ {
		tx := core.NewTransaction(payerKey, transferLike(payerKey, core.ProgramID("to")))
		tx.Timestamp += int64(i)
		tx.Sign(payer)
		if err := mp.Add(tx); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if err := mp.Add(tx); err != core.ErrDuplicateTx {
			t.Errorf("duplicate add: got %v want ErrDuplicateTx", err)
		}
		ids = append(ids, tx.ID)
	}

	extra := core.NewTransaction(payerKey, transferLike(payerKey, core.ProgramID("x")))
	extra.Sign(payer)
	if err := mp.Add(extra); err != core.ErrMempoolFull {
		t.Errorf("full pool: got %v want ErrMempoolFull", err)
	}

	pending := mp.Pending(10)
	if len(pending) != 2 || pending[0].ID != ids[0] || pending[1].ID != ids[1] {
		t.Errorf("pending should preserve submission order")
	}

	mp.Remove(ids[:1])
	if mp.Size() != 1 {
		t.Errorf("size after remove: got %d want 1", mp.Size())
	}
	if _, ok := mp.Get(ids[1]); !ok {
		t.Error("remaining tx should still be retrievable")
	}
}

func TestMempoolRejectsStaleAndForgedIDs(t *testing.T) {
	mp := core.NewMempool(0)
	payer := newKey(t)
	payerKey := core.PubkeyOf(payer)

	stale := core.NewTransaction(payerKey, transferLike(payerKey, core.ProgramID("to")))
	stale.Timestamp -= int64(2 * 3600 * 1e9)
	stale.Sign(payer)
	if err := mp.Add(stale); !errors.Is(err, core.ErrTxExpired) {
		t.Errorf("expired tx: got %v want ErrTxExpired", err)
	}

	forged := core.NewTransaction(payerKey, transferLike(payerKey, core.ProgramID("to")))
	forged.Sign(payer)
	forged.ID = "not-the-hash"
	if err := mp.Add(forged); err == nil {
		t.Error("tx with mismatched id should be rejected")
	}
}

func TestMempoolRejectsSettledTx(t *testing.T) {
	settled := map[string]bool{}
	mp := core.NewMempool(0).WithSettledCheck(func(id string) bool { return settled[id] })
	payer := newKey(t)
	payerKey := core.PubkeyOf(payer)

	tx := core.NewTransaction(payerKey, transferLike(payerKey, core.ProgramID("to")))
	tx.Sign(payer)
	if err := mp.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mp.Remove([]string{tx.ID})
	settled[tx.ID] = true

	if err := mp.Add(tx); !errors.Is(err, core.ErrAlreadySettled) {
		t.Errorf("replay: got %v want ErrAlreadySettled", err)
	}
	if mp.Size() != 0 {
		t.Errorf("size after replay: got %d want 0", mp.Size())
	}
}

func TestAccountClone(t *testing.T) {
	a := &core.Account{Key: core.ProgramID("a"), Lamports: 5, Data: []byte{1, 2}}
	c := a.Clone()
	c.Data[0] = 9
	if a.Data[0] != 1 {
		t.Error("clone should not share data")
	}
	if a.IsClosed() {
		t.Error("funded account is not closed")
	}
}
