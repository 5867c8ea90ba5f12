package bundle

import (
	"context"
	"path"
	"strings"

	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/codev/internal/engine/manifest"
	"go.trai.ch/zerr"
)

// Marker annotations added to members of the common jar that exist on only
// one side.
const (
	UnsafeForCommon = "Lnet/msrandom/minecraftcodev/annotations/UnsafeForCommon;"
	UnsafeForClient = "Lnet/msrandom/minecraftcodev/annotations/UnsafeForClient;"
)

const classSuffix = ".class"

// SplitLegacy splits a client jar and a non-bundled server jar into a common
// jar and a client-only jar.
//
// Classes on both sides are merged into the common jar: members only the
// client declares are annotated UnsafeForCommon and members only the server
// declares UnsafeForClient. Client classes that such client-only members
// refer to are copied to the common jar annotated UnsafeForCommon. Classes
// only the server has go to the common jar annotated UnsafeForClient, except
// libraries shaded into the server. The client jar keeps the classes the
// server lacks and the client's resources the server does not provide.
func SplitLegacy(ctx context.Context, clientPath, serverPath, commonOut, clientOut string) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		client, err := g.Open(clientPath)
		if err != nil {
			return err
		}
		server, err := g.Open(serverPath)
		if err != nil {
			return err
		}
		common, err := g.Create(commonOut)
		if err != nil {
			return err
		}
		newClient, err := g.Create(clientOut)
		if err != nil {
			return err
		}

		extra := make(map[string]bool)
		var extraOrder []string
		for _, p := range client.Paths() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !strings.HasSuffix(p, classSuffix) {
				continue
			}
			if !server.Has(p) {
				if err := newClient.CopyFrom(client, p, p); err != nil {
					return err
				}
				continue
			}
			refs, err := mergeShared(client, server, common, p)
			if err != nil {
				return zerr.With(err, "class", p)
			}
			for _, name := range refs {
				if !extra[name] {
					extra[name] = true
					extraOrder = append(extraOrder, name)
				}
			}
		}

		for _, name := range extraOrder {
			p := name + classSuffix
			if !client.Has(p) || common.Has(p) {
				continue
			}
			if err := copyAnnotated(client, common, p, UnsafeForCommon); err != nil {
				return err
			}
		}

		for _, p := range server.Paths() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !strings.HasSuffix(p, classSuffix) || common.Has(p) || shadedLibrary(p, client.Has(p)) {
				continue
			}
			if err := copyAnnotated(server, common, p, UnsafeForClient); err != nil {
				return err
			}
		}

		if err := copyResources(client, server, common, newClient); err != nil {
			return err
		}
		if err := writeManifest(client, newClient); err != nil {
			return err
		}
		return writeManifest(server, common)
	})
}

// shadedLibrary reports whether a server class that the client lacks
// belongs to a library bundled into the server jar rather than to the game.
func shadedLibrary(p string, onClient bool) bool {
	if onClient || !strings.Contains(p, "/") {
		return false
	}
	return !strings.Contains(p, "net/minecraft")
}

// mergeShared writes the union of the client and server versions of the
// class at p to common and returns the classes its client-only parts refer to.
func mergeShared(client, server, common *zipfs.Archive, p string) ([]string, error) {
	clientClass, err := readClass(client, p)
	if err != nil {
		return nil, err
	}
	serverClass, err := readClass(server, p)
	if err != nil {
		return nil, err
	}

	interfaces := mergeLists(clientClass.InterfaceNames(), serverClass.InterfaceNames(), func(s string) string { return s })
	fields := mergeLists(parts(clientClass, clientClass.Fields), parts(serverClass, serverClass.Fields), partKey)
	methods := mergeLists(parts(clientClass, clientClass.Methods), parts(serverClass, serverClass.Methods), partKey)

	refs := append([]string(nil), interfaces.client...)
	for _, f := range fields.client {
		refs = append(refs, classfile.DescriptorClasses(f.From.Pool.Utf8(f.Member.Desc))...)
	}
	for _, m := range methods.client {
		r, err := m.From.References(m.Member)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r...)
	}

	merged, err := classfile.Assemble(classfile.Layout{
		Base:       serverClass,
		Interfaces: interfaces.merged,
		Fields:     fields.merged,
		Methods:    methods.merged,
	})
	if err != nil {
		return nil, err
	}

	// Members of the assembled class line up with the merged lists.
	if err := annotateOnly(merged, merged.Fields, fields); err != nil {
		return nil, err
	}
	if err := annotateOnly(merged, merged.Methods, methods); err != nil {
		return nil, err
	}

	data, err := merged.Bytes()
	if err != nil {
		return nil, err
	}
	return refs, common.WriteFile(p, data)
}

func annotateOnly(cf *classfile.ClassFile, members []*classfile.Member, l merge[classfile.Part]) error {
	clientOnly := make(map[*classfile.Member]bool, len(l.client))
	for _, p := range l.client {
		clientOnly[p.Member] = true
	}
	serverOnly := make(map[*classfile.Member]bool, len(l.server))
	for _, p := range l.server {
		serverOnly[p.Member] = true
	}

	for i, src := range l.merged {
		var desc string
		switch {
		case clientOnly[src.Member]:
			desc = UnsafeForCommon
		case serverOnly[src.Member]:
			desc = UnsafeForClient
		default:
			continue
		}
		if err := cf.AddInvisibleAnnotation(&members[i].Attributes, desc); err != nil {
			return err
		}
	}
	return nil
}

func parts(cf *classfile.ClassFile, members []*classfile.Member) []classfile.Part {
	out := make([]classfile.Part, len(members))
	for i, m := range members {
		out[i] = classfile.Part{From: cf, Member: m}
	}
	return out
}

// partKey identifies a member by name and descriptor.
func partKey(p classfile.Part) string {
	name, desc := p.From.MemberName(p.Member)
	return name + desc
}

func readClass(a *zipfs.Archive, p string) (*classfile.ClassFile, error) {
	data, err := a.ReadFile(p)
	if err != nil {
		return nil, err
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, zerr.With(err, "archive", a.Path())
	}
	return cf, nil
}

func copyAnnotated(from, to *zipfs.Archive, p, desc string) error {
	cf, err := readClass(from, p)
	if err != nil {
		return err
	}
	if err := cf.AddInvisibleAnnotation(&cf.Attributes, desc); err != nil {
		return zerr.With(err, "class", p)
	}
	data, err := cf.Bytes()
	if err != nil {
		return zerr.With(err, "class", p)
	}
	return to.WriteFile(p, data)
}

// copyResources copies non-class entries other than the manifest and
// signing files. The client jar receives client resources the server lacks;
// when the server carries a data directory, language files and dotfiles
// directly under assets/ are kept on the client as well. The common jar
// receives every server resource.
func copyResources(client, server, common, newClient *zipfs.Archive) error {
	legacy := len(server.Walk("data")) == 0

	for _, p := range client.Paths() {
		if !isResource(p) {
			continue
		}
		keep := !server.Has(p) ||
			(!legacy && (strings.Contains(p, "lang") || (path.Dir(p) == "assets" && strings.HasPrefix(path.Base(p), "."))))
		if !keep {
			continue
		}
		if err := newClient.CopyFrom(client, p, p); err != nil {
			return err
		}
	}

	for _, p := range server.Paths() {
		if !isResource(p) {
			continue
		}
		if err := common.CopyFrom(server, p, p); err != nil {
			return err
		}
	}
	return nil
}

func isResource(p string) bool {
	return !strings.HasSuffix(p, classSuffix) && p != domain.ManifestPath && !manifest.IsSigningFile(p)
}

func writeManifest(from, to *zipfs.Archive) error {
	m, err := manifest.Read(from)
	if err != nil {
		return err
	}
	m.StripDigests()
	m.Main.Set(domain.MappingNamespaceAttribute, domain.NamespaceObf)
	return manifest.Write(to, m)
}

// merge is the result of mergeLists.
type merge[T any] struct {
	merged []T
	client []T
	server []T
}

// mergeLists interleaves the client and server lists, keeping the relative
// order of both. An element present on both sides is taken from the client.
func mergeLists[T any](client, server []T, key func(T) string) merge[T] {
	inClient := make(map[string]bool, len(client))
	for _, v := range client {
		inClient[key(v)] = true
	}
	inServer := make(map[string]bool, len(server))
	for _, v := range server {
		inServer[key(v)] = true
	}

	var out merge[T]
	emitted := make(map[string]bool)
	ci, si := 0, 0
	for ci < len(client) || si < len(server) {
		for ci < len(client) && emitted[key(client[ci])] {
			ci++
		}
		for si < len(server) && emitted[key(server[si])] {
			si++
		}

		progressed := false
		for ci < len(client) && si < len(server) && key(client[ci]) == key(server[si]) {
			emitted[key(client[ci])] = true
			out.merged = append(out.merged, client[ci])
			ci++
			si++
			progressed = true
		}
		for ci < len(client) && !inServer[key(client[ci])] {
			out.merged = append(out.merged, client[ci])
			out.client = append(out.client, client[ci])
			ci++
			progressed = true
		}
		for si < len(server) && !inClient[key(server[si])] {
			out.merged = append(out.merged, server[si])
			out.server = append(out.server, server[si])
			si++
			progressed = true
		}

		// Shared elements in a different order on each side: take the
		// client's next one now and skip its twin on the server later.
		switch {
		case progressed:
		case ci < len(client):
			emitted[key(client[ci])] = true
			out.merged = append(out.merged, client[ci])
			ci++
		case si < len(server):
			emitted[key(server[si])] = true
			out.merged = append(out.merged, server[si])
			si++
		}
	}
	return out
}
