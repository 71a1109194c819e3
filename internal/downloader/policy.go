package downloader

// ShouldFetch decides whether an artifact must be fetched. verify is only
// consulted for ModeIfChecksumMismatch when the artifact exists, and must
// report whether the stored content matches the given digest.
func ShouldFetch(exists bool, p Policy, verify func(Digest) bool) bool {
	switch p.mode {
	case ModeIfMissing:
		return !exists
	case ModeIfChecksumMismatch:
		if !exists {
			return true
		}
		return !verify(p.checksum)
	default:
		return true
	}
}
