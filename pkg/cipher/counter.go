package cipher

// addCounter returns a new big-endian counter block equal to counter + n,
// wrapping silently on overflow, per spec.md §4.3's "IV as a big-endian
// 128-bit counter".
func addCounter(counter []byte, n uint64) []byte {
	out := append([]byte(nil), counter...)
	incrementCounter(out, n)
	return out
}

// incrementCounter adds n to counter in place, treating it as a big-endian
// unsigned integer of arbitrary byte length.
func incrementCounter(counter []byte, n uint64) {
	carry := n
	for i := len(counter) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(counter[i]) + (carry & 0xFF)
		counter[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}
}
