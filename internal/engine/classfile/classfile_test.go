package classfile_test

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
)

var java8 = classfile.Version{Major: 52}

type tableMapper struct {
	classes map[string]string
	members map[string]string
}

func (t tableMapper) Class(name string) string {
	if v, ok := t.classes[name]; ok {
		return v
	}
	return name
}

func (t tableMapper) Field(owner, name, _ string) string {
	if v, ok := t.members[owner+"."+name]; ok {
		return v
	}
	return name
}

func (t tableMapper) Method(owner, name, desc string) string {
	if v, ok := t.members[owner+"."+name+desc]; ok {
		return v
	}
	return name
}

func u2(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }
func u4(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

func TestNode_EncodeStub(t *testing.T) {
	t.Parallel()

	node := &classfile.Node{
		Version:    classfile.Version{Major: 61},
		Access:     classfile.AccPublic | classfile.AccSuper,
		Name:       "net/minecraft/Foo",
		SuperName:  "java/lang/Object",
		Signature:  "<T:Ljava/lang/Object;>Ljava/lang/Object;Ljava/lang/Runnable;",
		Interfaces: []string{"java/lang/Runnable"},
		InnerClasses: []classfile.InnerClass{
			{Name: "net/minecraft/Foo$Bar", OuterName: "net/minecraft/Foo", InnerName: "Bar", Access: classfile.AccStatic},
		},
		OuterClass: &classfile.OuterMethod{Owner: "net/minecraft/Outer", Name: "make", Desc: "()V"},
		Fields: []classfile.MemberNode{
			{Access: classfile.AccPrivate, Name: "value", Desc: "I"},
		},
		Methods: []classfile.MemberNode{
			{Access: classfile.AccPublic, Name: "run", Desc: "()V", Exceptions: []string{"java/io/IOException"}},
			{Access: classfile.AccPublic, Name: "get", Desc: "()Ljava/lang/Object;", Signature: "()TT;"},
		},
	}

	data, err := node.Encode()
	require.NoError(t, err)

	cf, err := classfile.Parse(data)
	require.NoError(t, err)

	got, err := cf.Node()
	require.NoError(t, err)
	if diff := cmp.Diff(node, got); diff != "" {
		t.Errorf("node mismatch (-want +got):\n%s", diff)
	}

	for _, m := range cf.Methods {
		assert.Nil(t, cf.Attribute(m.Attributes, classfile.AttrCode), "stubs carry no code")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	_, err := classfile.Parse([]byte{0xCA, 0xFE})
	require.ErrorContains(t, err, domain.ErrInvalidClassFile.Error())

	valid, err := classfile.NewClass(java8, classfile.AccPublic, "a", "java/lang/Object").Bytes()
	require.NoError(t, err)

	_, err = classfile.Parse(append(valid, 0))
	require.ErrorContains(t, err, domain.ErrInvalidClassFile.Error())

	_, err = classfile.Parse(valid[:len(valid)-1])
	require.ErrorContains(t, err, domain.ErrInvalidClassFile.Error())
}

func TestParse_PreservesBytes(t *testing.T) {
	t.Parallel()

	cf := classfile.NewClass(java8, classfile.AccPublic, "a", "java/lang/Object")
	cf.AddField(classfile.AccPrivate, "name\x00with nul", "Ljava/lang/String;")
	cf.AddMethod(classfile.AccPublic, "café\U0001F600", "()V")
	data, err := cf.Bytes()
	require.NoError(t, err)

	parsed, err := classfile.Parse(data)
	require.NoError(t, err)
	again, err := parsed.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	require.NotNil(t, parsed.FindField("name\x00with nul"))
	require.NotNil(t, parsed.FindMethod("café\U0001F600", "()V"))
}

func TestMapDescriptor(t *testing.T) {
	t.Parallel()

	fn := tableMapper{classes: map[string]string{"a": "net/Foo", "b": "net/Bar"}}.Class

	tests := []struct {
		in, want string
	}{
		{"I", "I"},
		{"La;", "Lnet/Foo;"},
		{"[[La;", "[[Lnet/Foo;"},
		{"(ILa;[Lb;J)Lb;", "(ILnet/Foo;[Lnet/Bar;J)Lnet/Bar;"},
		{"(Ljava/lang/String;)V", "(Ljava/lang/String;)V"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classfile.MapDescriptor(tt.in, fn), tt.in)
	}
	assert.Equal(t, "[Lnet/Foo;", classfile.MapClassName("[La;", fn))
	assert.Equal(t, "net/Bar", classfile.MapClassName("b", fn))
}

func TestMapSignature(t *testing.T) {
	t.Parallel()

	fn := tableMapper{classes: map[string]string{
		"a":   "net/Foo",
		"a$b": "net/Foo$Inner",
		"L":   "should/not/Map",
		"c":   "net/Other",
		"c$d": "net/Moved",
	}}.Class

	tests := []struct {
		name, in, want string
	}{
		{
			name: "type parameter named like a class marker",
			in:   "<L:La;>Ljava/lang/Object;",
			want: "<L:Lnet/Foo;>Ljava/lang/Object;",
		},
		{
			name: "interface bound",
			in:   "<T::Ljava/lang/Comparable<TT;>;>La;",
			want: "<T::Ljava/lang/Comparable<TT;>;>Lnet/Foo;",
		},
		{
			name: "inner class",
			in:   "La<TT;>.b<*>;",
			want: "Lnet/Foo<TT;>.Inner<*>;",
		},
		{
			name: "inner class moved out of its outer",
			in:   "Lc.d;",
			want: "Lnet/Other.Moved;",
		},
		{
			name: "method with wildcards and throws",
			in:   "<E:Ljava/lang/Exception;>(Ljava/util/List<+La;>;[TE;)Ljava/util/Map<-La;La;>;^TE;^La;",
			want: "<E:Ljava/lang/Exception;>(Ljava/util/List<+Lnet/Foo;>;[TE;)Ljava/util/Map<-Lnet/Foo;Lnet/Foo;>;^TE;^Lnet/Foo;",
		},
		{
			name: "malformed is unchanged",
			in:   "La",
			want: "La",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, classfile.MapSignature(tt.in, fn))
		})
	}
}

// buildReferencingClass returns class "a" whose method "m" reads field a.f
// through a getfield instruction, plus a string literal equal to the class name.
func buildReferencingClass(t *testing.T) []byte {
	t.Helper()

	cf := classfile.NewClass(java8, classfile.AccPublic|classfile.AccSuper, "a", "b")
	cf.AddInterface("c")
	cf.SetAttribute(&cf.Attributes, classfile.AttrSourceFile, u2(nil, cf.Pool.AddUtf8("SourceFile.java")))
	cf.AddField(classfile.AccPrivate, "f", "La;")

	// Shares the Utf8 "a" with the Class constant.
	nameUtf8 := cf.Pool.Get(cf.This).A
	stringIdx := cf.Pool.Append(classfile.Constant{Tag: classfile.TagString, A: nameUtf8})

	fieldRef := cf.Pool.Append(classfile.Constant{
		Tag: classfile.TagFieldref,
		A:   cf.This,
		B:   cf.Pool.AddNameAndType("f", "La;"),
	})

	m := cf.AddMethod(classfile.AccPublic, "m", "(La;)V")
	code := []byte{
		0x2a, 0xb4, byte(fieldRef >> 8), byte(fieldRef), // aload_0; getfield
		0x57,                  // pop
		0x12, byte(stringIdx), // ldc
		0x57, // pop
		0xb1, // return
	}
	var lvt []byte
	lvt = u2(lvt, 1)
	lvt = u2(lvt, 0)
	lvt = u2(lvt, uint16(len(code)))
	lvt = u2(lvt, cf.Pool.AddUtf8("this"))
	lvt = u2(lvt, cf.Pool.AddUtf8("La;"))
	lvt = u2(lvt, 0)

	var body []byte
	body = u2(body, 2)
	body = u2(body, 2)
	body = u4(body, uint32(len(code)))
	body = append(body, code...)
	body = u2(body, 0)
	body = u2(body, 1)
	body = u2(body, cf.Pool.AddUtf8(classfile.AttrLocalVariableTable))
	body = u4(body, uint32(len(lvt)))
	body = append(body, lvt...)
	cf.SetAttribute(&m.Attributes, classfile.AttrCode, body)

	data, err := cf.Bytes()
	require.NoError(t, err)
	return data
}

func TestRemap(t *testing.T) {
	t.Parallel()

	m := tableMapper{
		classes: map[string]string{"a": "net/Foo", "b": "net/Base", "c": "net/Api"},
		members: map[string]string{"a.f": "field", "a.m(La;)V": "method"},
	}

	cf, err := classfile.Parse(buildReferencingClass(t))
	require.NoError(t, err)
	require.NoError(t, classfile.Remap(cf, m))

	data, err := cf.Bytes()
	require.NoError(t, err)
	out, err := classfile.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "net/Foo", out.Name())
	assert.Equal(t, "net/Base", out.SuperName())
	assert.Equal(t, []string{"net/Api"}, out.InterfaceNames())
	assert.NotNil(t, out.FindField("field"))

	method := out.FindMethod("method", "(Lnet/Foo;)V")
	require.NotNil(t, method)

	code := out.Attribute(method.Attributes, classfile.AttrCode)
	require.NotNil(t, code)
	ref := binary.BigEndian.Uint16(code.Data[10:])
	owner, name, desc := out.Pool.MemberRef(ref)
	assert.Equal(t, []string{"net/Foo", "field", "Lnet/Foo;"}, []string{owner, name, desc})

	ldc := out.Pool.Get(uint16(code.Data[14]))
	assert.Equal(t, "a", out.Pool.Utf8(ldc.A), "string literals are not class references")

	source := out.Attribute(out.Attributes, classfile.AttrSourceFile)
	require.NotNil(t, source)
	assert.Equal(t, "Foo.java", out.Pool.Utf8(binary.BigEndian.Uint16(source.Data)))
}

func TestRemap_InnerClassNames(t *testing.T) {
	t.Parallel()

	node := &classfile.Node{
		Version:   java8,
		Name:      "a$b",
		SuperName: "java/lang/Object",
		InnerClasses: []classfile.InnerClass{
			{Name: "a$b", OuterName: "a", InnerName: "b", Access: classfile.AccPublic | classfile.AccStatic},
			{Name: "a$1", Access: 0},
		},
		OuterClass: &classfile.OuterMethod{Owner: "a", Name: "x", Desc: "()La;"},
	}
	data, err := node.Encode()
	require.NoError(t, err)

	cf, err := classfile.Parse(data)
	require.NoError(t, err)
	require.NoError(t, classfile.Remap(cf, tableMapper{
		classes: map[string]string{"a": "net/Outer", "a$b": "net/Outer$Inner", "a$1": "net/Outer$1"},
		members: map[string]string{"a.x()La;": "create"},
	}))

	got, err := cf.Node()
	require.NoError(t, err)
	assert.Equal(t, "net/Outer$Inner", got.Name)
	assert.Equal(t, []classfile.InnerClass{
		{Name: "net/Outer$Inner", OuterName: "net/Outer", InnerName: "Inner", Access: classfile.AccPublic | classfile.AccStatic},
		{Name: "net/Outer$1"},
	}, got.InnerClasses)
	assert.Equal(t, &classfile.OuterMethod{Owner: "net/Outer", Name: "create", Desc: "()Lnet/Outer;"}, got.OuterClass)
}

func TestVersion_Less(t *testing.T) {
	t.Parallel()

	assert.True(t, classfile.Version{Major: 52}.Less(classfile.Version{Major: 61}))
	assert.True(t, classfile.Version{Major: 52, Minor: 0}.Less(classfile.Version{Major: 52, Minor: 3}))
	assert.False(t, classfile.Version{Major: 61}.Less(classfile.Version{Major: 52, Minor: 9}))
}
