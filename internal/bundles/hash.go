package bundles

// HashKey maps a result id to its result chunk index. Import and query go
// through the same function; changing it invalidates every existing dump.
func HashKey(id ID, maxIndex int) int {
	hash := int32(0)
	for _, c := range string(id) {
		hash = (hash << 5) - hash + int32(c)
	}

	if hash < 0 {
		hash = -hash
	}

	return int(hash % int32(maxIndex))
}
