package intersection_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/codev/internal/engine/intersection"
)

func class(t *testing.T, name string, methods ...classfile.MemberNode) []byte {
	t.Helper()
	data, err := (&classfile.Node{
		Version:   classfile.Version{Major: 61},
		Access:    pub,
		Name:      name,
		SuperName: "java/lang/Object",
		Methods:   methods,
	}).Encode()
	require.NoError(t, err)
	return data
}

func method(access uint16, name string) classfile.MemberNode {
	return classfile.MemberNode{Access: access, Name: name, Desc: "()V"}
}

func writeJar(t *testing.T, path string, entries map[string][]byte) string {
	t.Helper()
	a, err := zipfs.Create(path)
	require.NoError(t, err)
	for name, data := range entries {
		require.NoError(t, a.WriteFile(name, data))
	}
	require.NoError(t, a.Close())
	return path
}

func readJar(t *testing.T, path string) map[string][]byte {
	t.Helper()
	a, err := zipfs.Open(path)
	require.NoError(t, err)
	defer a.Close() //nolint:errcheck // test cleanup

	out := make(map[string][]byte)
	for _, p := range a.Paths() {
		data, err := a.ReadFile(p)
		require.NoError(t, err)
		out[p] = data
	}
	return out
}

func readNode(t *testing.T, data []byte) *classfile.Node {
	t.Helper()
	n, err := classfile.ReadNode(data)
	require.NoError(t, err)
	return n
}

func TestArchives_DropsResources(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	a := writeJar(t, filepath.Join(dir, "a.jar"), map[string][]byte{
		"net/Foo.class":       class(t, "net/Foo", method(pub, "run")),
		"net/OnlyA.class":     class(t, "net/OnlyA"),
		"assets/lang/en.json": []byte("{}"),
		"data/config.json":    []byte("{}"),
		domain.ManifestPath:   []byte("Manifest-Version: 1.0\r\nMain-Class: A\r\nShared: yes\r\n\r\n"),
	})
	b := writeJar(t, filepath.Join(dir, "b.jar"), map[string][]byte{
		"net/Foo.class":       class(t, "net/Foo", method(prot, "run")),
		"assets/lang/en.json": []byte("{}"),
		"data/config.json":    []byte("{}"),
		domain.ManifestPath:   []byte("Manifest-Version: 1.0\r\nMain-Class: B\r\nShared: yes\r\n\r\n"),
	})

	out := filepath.Join(dir, "out", "common.jar")
	require.NoError(t, intersection.Archives(context.Background(), []string{a, b}, out, intersection.Strict))

	entries := readJar(t, out)
	assert.Len(t, entries, 2, "only classes and manifests survive")
	assert.Equal(t, "Manifest-Version: 1.0\r\nShared: yes\r\n\r\n", string(entries[domain.ManifestPath]))

	foo := readNode(t, entries["net/Foo.class"])
	require.Len(t, foo.Methods, 1)
	assert.Equal(t, prot, foo.Methods[0].Access)
}

func TestArchives_FoldOfThreeEqualsPairwise(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	jars := []string{
		writeJar(t, filepath.Join(dir, "1.jar"), map[string][]byte{
			"net/Foo.class": class(t, "net/Foo", method(pub, "a"), method(pub, "b"), method(pub, "c")),
			"net/Bar.class": class(t, "net/Bar"),
		}),
		writeJar(t, filepath.Join(dir, "2.jar"), map[string][]byte{
			"net/Foo.class": class(t, "net/Foo", method(prot, "a"), method(pub, "b")),
			"net/Bar.class": class(t, "net/Bar"),
		}),
		writeJar(t, filepath.Join(dir, "3.jar"), map[string][]byte{
			"net/Foo.class": class(t, "net/Foo", method(pub, "a"), method(priv, "b"), method(pub, "c")),
		}),
	}

	ctx := context.Background()
	folded := filepath.Join(dir, "folded.jar")
	require.NoError(t, intersection.Archives(ctx, jars, folded, intersection.Strict))

	step := filepath.Join(dir, "step.jar")
	require.NoError(t, intersection.Pair(ctx, jars[0], jars[1], step, intersection.Strict))
	manual := filepath.Join(dir, "manual.jar")
	require.NoError(t, intersection.Pair(ctx, step, jars[2], manual, intersection.Strict))

	assert.Equal(t, readJar(t, manual), readJar(t, folded))

	foo := readNode(t, readJar(t, folded)["net/Foo.class"])
	assert.Equal(t, []classfile.MemberNode{method(prot, "a"), method(priv, "b")}, foo.Methods)
}

func TestArchives_SingleInputIsCopied(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := writeJar(t, filepath.Join(dir, "in.jar"), map[string][]byte{"readme.txt": []byte("kept")})
	out := filepath.Join(dir, "out.jar")
	require.NoError(t, intersection.Archives(context.Background(), []string{in}, out, intersection.Strict))

	want, err := os.ReadFile(in)
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestArchives_NoInputs(t *testing.T) {
	t.Parallel()

	err := intersection.Archives(context.Background(), nil, filepath.Join(t.TempDir(), "out.jar"), intersection.Strict)
	require.ErrorContains(t, err, domain.ErrNoIntersectionInputs.Error())
}

func TestArchives_CancelledPublishesNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	a := writeJar(t, filepath.Join(dir, "a.jar"), map[string][]byte{"net/Foo.class": class(t, "net/Foo")})
	b := writeJar(t, filepath.Join(dir, "b.jar"), map[string][]byte{"net/Foo.class": class(t, "net/Foo")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(dir, "out.jar")
	err := intersection.Archives(ctx, []string{a, b}, out, intersection.Strict)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestArchives_UsesSuperClassesFromEachSide(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	node := func(name, super string) []byte {
		data, err := (&classfile.Node{Version: classfile.Version{Major: 61}, Name: name, SuperName: super}).Encode()
		require.NoError(t, err)
		return data
	}

	a := writeJar(t, filepath.Join(dir, "a.jar"), map[string][]byte{
		"net/X.class":  node("net/X", "net/P1"),
		"net/P1.class": node("net/P1", "net/Root"),
	})
	b := writeJar(t, filepath.Join(dir, "b.jar"), map[string][]byte{
		"net/X.class":  node("net/X", "net/P2"),
		"net/P2.class": node("net/P2", "net/Root"),
	})

	out := filepath.Join(dir, "out.jar")
	require.NoError(t, intersection.Archives(context.Background(), []string{a, b}, out, intersection.Strict))
	assert.Equal(t, "net/Root", readNode(t, readJar(t, out)["net/X.class"]).SuperName)
}
