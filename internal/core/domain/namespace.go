package domain

const (
	// NamespaceObf is the obfuscated namespace the game ships in.
	NamespaceObf = "obf"

	// NamespaceOfficial is the name tiny files use for the obfuscated namespace.
	NamespaceOfficial = "official"

	// NamespaceIntermediary is the stable intermediate namespace.
	NamespaceIntermediary = "intermediary"

	// NamespaceNamed is the human-readable namespace.
	NamespaceNamed = "named"
)

// CanonicalNamespace maps alternative namespace spellings onto the names used internally.
func CanonicalNamespace(name string) string {
	if name == NamespaceOfficial {
		return NamespaceObf
	}
	return name
}
