package state

import (
	"math/big"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/omnibatch/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func testLog(id uint64) *types.BatchLog {
	l := &types.BatchLog{
		BatchID:     id,
		ExecutedAt:  time.Unix(1_700_000_000, 0),
		Prices:      types.ReferencePrices,
		SlippageBps: types.DefaultSlippageBps,
		OrderCount:  8,
	}
	l.Results[0] = types.PairResult{TotalAIn: 3_000_000_000, TotalBIn: 1_000_000_000, FinalPoolA: 4_000_000, FinalPoolB: 742_510_000_000}
	return l
}

func TestLeafCoversEveryField(t *testing.T) {
	c := qt.New(t)
	base, err := Leaf(testLog(1))
	c.Assert(err, qt.IsNil)

	again, err := Leaf(testLog(1))
	c.Assert(err, qt.IsNil)
	c.Assert(again.Cmp(base), qt.Equals, 0)

	mutations := []func(*types.BatchLog){
		func(l *types.BatchLog) { l.BatchID = 2 },
		func(l *types.BatchLog) { l.Prices[1]++ },
		func(l *types.BatchLog) { l.SlippageBps = 50 },
		func(l *types.BatchLog) { l.Results[5].FinalPoolB = 1 },
		func(l *types.BatchLog) { l.ExecutedAt = l.ExecutedAt.Add(time.Second) },
	}
	for i, mutate := range mutations {
		l := testLog(1)
		mutate(l)
		leaf, err := Leaf(l)
		c.Assert(err, qt.IsNil)
		c.Assert(leaf.Cmp(base), qt.Not(qt.Equals), 0, qt.Commentf("mutation %d", i))
	}
}

func TestResultsTree(t *testing.T) {
	c := qt.New(t)
	res, err := New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)

	empty, err := res.Root()
	c.Assert(err, qt.IsNil)

	leaf1, err := Leaf(testLog(1))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Add(1, leaf1), qt.IsNil)
	c.Assert(res.Has(1), qt.IsTrue)
	c.Assert(res.Has(2), qt.IsFalse)

	root1, err := res.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root1, qt.Not(qt.DeepEquals), empty)

	// replaying the same commitment does not move the root
	c.Assert(res.Add(1, leaf1), qt.IsNil)
	root, err := res.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root, qt.DeepEquals, root1)

	// rewriting history is refused
	c.Assert(res.Add(1, big.NewInt(5)), qt.ErrorIs, ErrLeafMismatch)

	leaf2, err := Leaf(testLog(2))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Add(2, leaf2), qt.IsNil)

	proof, err := res.GenProof(1)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.LeafValue().Cmp(leaf1), qt.Equals, 0)
	ok, err := CheckProof(proof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	// a proof does not verify a different leaf
	proof.Value = arbo.BigIntToBytes(LeafLen, big.NewInt(5))
	ok, err = CheckProof(proof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	_, err = res.GenProof(3)
	c.Assert(err, qt.IsNotNil)
}

func TestResultsTreePersists(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	res, err := New(database)
	c.Assert(err, qt.IsNil)
	leaf, err := Leaf(testLog(1))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Add(1, leaf), qt.IsNil)
	root, err := res.Root()
	c.Assert(err, qt.IsNil)

	reopened, err := New(database)
	c.Assert(err, qt.IsNil)
	c.Assert(reopened.Has(1), qt.IsTrue)
	root2, err := reopened.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root2, qt.DeepEquals, root)
}
