package bundle

// MergeNames exposes mergeLists over plain names.
func MergeNames(client, server []string) (merged, clientOnly, serverOnly []string) {
	m := mergeLists(client, server, func(s string) string { return s })
	return m.merged, m.client, m.server
}
