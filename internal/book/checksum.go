package book

import "hash/fnv"

// computeChecksum hashes the top `depth` levels of each side into a
// single deterministic value, per spec.md §4.2: "a rolling hash over the
// first N=10 levels per side as hash(price_i, qty_i, count_i)". Two
// books with equal top-of-book state produce equal checksums regardless
// of how they were built (spec.md §8 property 5), since the hash only
// depends on (price, qty, count) per level, not on insertion history.
func computeChecksum(bids, asks *levels, depth int) uint64 {
	h := fnv.New64a()
	writeSide(h, bids, depth)
	writeSide(h, asks, depth)
	return h.Sum64()
}

func writeSide(h interface{ Write([]byte) (int, error) }, t *levels, depth int) {
	items := t.Items()
	n := depth
	if n > len(items) {
		n = len(items)
	}
	buf := make([]byte, 8*3)
	for i := 0; i < n; i++ {
		lvl := items[i]
		putU64(buf[0:8], uint64(lvl.Price))
		putU64(buf[8:16], uint64(lvl.TotalQuantity))
		putU64(buf[16:24], uint64(lvl.orderCount()))
		h.Write(buf)
	}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
