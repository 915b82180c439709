package record

// ExtractKey returns the first keyLength bytes of content. Records shorter
// than keyLength have no key and report false; they are never padded.
func ExtractKey(content []byte, keyLength int) ([]byte, bool) {
	if keyLength <= 0 || len(content) < keyLength {
		return nil, false
	}
	return content[:keyLength], true
}
