package manifest_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/manifest"
)

const signed = "Manifest-Version: 1.0\r\n" +
	"Main-Class: net.minecraft.client.main.Main\r\n" +
	"\r\n" +
	"Name: net/minecraft/Foo.class\r\n" +
	"SHA-256-Digest: abc=\r\n" +
	"\r\n" +
	"Name: net/minecraft/Bar.class\r\n" +
	"SHA-256-Digest: def=\r\n" +
	"Custom: kept\r\n" +
	"\r\n"

func TestParse(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte(signed))
	require.NoError(t, err)

	v, ok := m.Main.Get("main-class")
	require.True(t, ok, "attribute names are case-insensitive")
	assert.Equal(t, "net.minecraft.client.main.Main", v)
	assert.Equal(t, []string{"net/minecraft/Foo.class", "net/minecraft/Bar.class"}, m.EntryNames())

	custom, ok := m.Entry("net/minecraft/Bar.class").Get("Custom")
	require.True(t, ok)
	assert.Equal(t, "kept", custom)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "missing colon", input: "Manifest-Version 1.0\r\n"},
		{name: "leading continuation", input: " orphan\r\n"},
		{name: "section without name", input: "Manifest-Version: 1.0\r\n\r\nFoo: bar\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := manifest.Parse([]byte(tt.input))
			require.ErrorContains(t, err, domain.ErrInvalidManifest.Error())
		})
	}
}

func TestBytes_WrapsLongLines(t *testing.T) {
	t.Parallel()

	m := manifest.New()
	long := strings.Repeat("x", 150)
	m.Main.Set("Class-Path", long)

	data := m.Bytes()
	for line := range strings.SplitSeq(string(data), "\r\n") {
		assert.LessOrEqual(t, len(line), 72)
	}

	parsed, err := manifest.Parse(data)
	require.NoError(t, err)
	v, _ := parsed.Main.Get("Class-Path")
	assert.Equal(t, long, v)
}

func TestBytes_VersionFirst(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte("Main-Class: A\r\nManifest-Version: 1.0\r\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(m.Bytes()), "Manifest-Version: 1.0\r\nMain-Class: A\r\n"))
}

func TestIntersect(t *testing.T) {
	t.Parallel()

	a, err := manifest.Parse([]byte("Manifest-Version: 1.0\r\nMain-Class: A\r\nOnly-A: x\r\n\r\n" +
		"Name: shared\r\nK: same\r\nJ: a\r\n\r\nName: a-only\r\nK: v\r\n\r\n"))
	require.NoError(t, err)
	b, err := manifest.Parse([]byte("Manifest-Version: 1.0\r\nMain-Class: B\r\n\r\n" +
		"Name: shared\r\nK: same\r\nJ: b\r\n\r\n"))
	require.NoError(t, err)

	out := manifest.Intersect(a, b)

	assert.Equal(t, []manifest.Attribute{{Name: "Manifest-Version", Value: "1.0"}}, out.Main.All())
	assert.Equal(t, []string{"shared"}, out.EntryNames())
	assert.Equal(t, []manifest.Attribute{{Name: "K", Value: "same"}}, out.Entry("shared").All())
}

func TestStripDigests(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte(signed))
	require.NoError(t, err)
	m.StripDigests()

	assert.Equal(t, []string{"net/minecraft/Bar.class"}, m.EntryNames())
	assert.Equal(t, []manifest.Attribute{{Name: "Custom", Value: "kept"}}, m.Entry("net/minecraft/Bar.class").All())
}

func TestIsSigningFile(t *testing.T) {
	t.Parallel()

	assert.True(t, manifest.IsSigningFile("META-INF/MOJANGCS.SF"))
	assert.True(t, manifest.IsSigningFile("META-INF/mojangcs.rsa"))
	assert.True(t, manifest.IsSigningFile("META-INF/CERT.DSA"))
	assert.False(t, manifest.IsSigningFile("META-INF/MANIFEST.MF"))
	assert.False(t, manifest.IsSigningFile("META-INF/sub/CERT.SF"))
	assert.False(t, manifest.IsSigningFile("net/Foo.class"))
}

func TestSetNamespace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.jar")
	a, err := zipfs.Create(path)
	require.NoError(t, err)
	require.NoError(t, manifest.SetNamespace(a, domain.NamespaceObf))
	require.NoError(t, a.Close())

	r, err := zipfs.Open(path)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // test cleanup

	m, err := manifest.Read(r)
	require.NoError(t, err)
	ns, ok := m.Main.Get(domain.MappingNamespaceAttribute)
	require.True(t, ok)
	assert.Equal(t, domain.NamespaceObf, ns)
	version, _ := m.Main.Get(manifest.VersionAttribute)
	assert.Equal(t, "1.0", version)
}
