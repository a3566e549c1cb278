package mpc

import "github.com/vocdoni/omnibatch/types"

// Circuit bodies. They run inside the cluster on decrypted values; every
// value that leaves a circuit in plaintext is listed as revealed by the
// caller. Conditions on secrets are computed with the oblivious helpers.

// addBalance returns whether the encrypted update equals the amount moved on
// the host and the balance credited with it. A mismatch leaves the balance
// unchanged.
func addBalance(update, balance, amount uint64) (matches, newBalance uint64) {
	matches = eq(update, amount)
	return matches, mux(matches, satAdd(balance, update), balance)
}

// subBalance returns whether the balance covers the update and the update is
// the amount leaving the vault, and the new balance, which is unchanged if
// not.
func subBalance(update, balance, amount uint64) (hasFunds, newBalance uint64) {
	hasFunds = and(geq(balance, update), eq(update, amount))
	return hasFunds, mux(hasFunds, balance-update, balance)
}

// transfer moves amount from sender to recipient if the sender can afford
// it. Otherwise both balances come back unchanged.
func transfer(amount, sender, recipient uint64) (hasFunds, newSender, newRecipient uint64) {
	hasFunds = geq(sender, amount)
	newSender = mux(hasFunds, sender-amount, sender)
	newRecipient = mux(hasFunds, satAdd(recipient, amount), recipient)
	return hasFunds, newSender, newRecipient
}

// accumulateOrder checks the order is funded and well formed, deducts it from
// the balance and adds it to the side of its pair. All six slots are visited
// so the pair stays hidden. The batch is ready once the funded order count
// reaches minOrders with at least MinActivePairs pairs holding volume.
func accumulateOrder(pairID, dir, amount, balance uint64, batch [types.BatchTotals]uint64,
	orderCount, minOrders uint64,
) (hasFunds, ready, newBalance uint64, newBatch [types.BatchTotals]uint64) {
	wellFormed := and(and(geq(types.NumPairs-1, pairID), geq(1, dir)), nonZero(amount))
	hasFunds = and(geq(balance, amount), wellFormed)
	newBalance = mux(hasFunds, balance-amount, balance)

	sideA := eq(dir, uint64(types.AToB))
	active := uint64(0)
	for i := uint64(0); i < types.NumPairs; i++ {
		hit := and(eq(pairID, i), hasFunds)
		a := satAdd(batch[2*i], mux(and(hit, sideA), amount, 0))
		b := satAdd(batch[2*i+1], mux(and(hit, sideA^1), amount, 0))
		newBatch[2*i] = a
		newBatch[2*i+1] = b
		active += or(nonZero(a), nonZero(b))
	}
	ready = and(geq(orderCount+hasFunds, minOrders), geq(active, types.MinActivePairs))
	return hasFunds, ready, newBalance, newBatch
}

// calculatePayout returns the pro-rata share of the pool for the order amount
// and the balance credited with it. The share is zero when the pool has no
// input or when the claimed pair and direction are not the ones encrypted in
// the order.
func calculatePayout(pairID, dir, amount, balance, totalInput, finalPoolOutput, claimedPair, claimedDir uint64) (payout, newBalance uint64) {
	matches := and(eq(pairID, claimedPair), eq(dir, claimedDir))
	payout = mux(matches, mulDiv(amount, finalPoolOutput, totalInput), 0)
	return payout, satAdd(balance, payout)
}
