package classfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
)

func addCode(cf *classfile.ClassFile, m *classfile.Member, maxStack uint16, bytecode []byte) {
	var data []byte
	data = u2(data, maxStack)
	data = u2(data, 1)
	data = u4(data, uint32(len(bytecode))) //nolint:gosec // test fixture
	data = append(data, bytecode...)
	data = u2(data, 0)
	data = u2(data, 0)
	m.Attributes = append(m.Attributes, &classfile.Attribute{Name: cf.Pool.AddUtf8(classfile.AttrCode), Data: data})
}

func methodRef(cf *classfile.ClassFile, owner, name, desc string) uint16 {
	return cf.Pool.Append(classfile.Constant{
		Tag: classfile.TagMethodref,
		A:   cf.Pool.AddClass(owner),
		B:   cf.Pool.AddNameAndType(name, desc),
	})
}

func reparse(t *testing.T, cf *classfile.ClassFile) *classfile.ClassFile {
	t.Helper()
	data, err := cf.Bytes()
	require.NoError(t, err)
	out, err := classfile.Parse(data)
	require.NoError(t, err)
	return out
}

func methodNames(cf *classfile.ClassFile) []string {
	var names []string
	for _, m := range cf.Methods {
		name, desc := cf.MemberName(m)
		names = append(names, name+desc)
	}
	return names
}

func TestInstructions(t *testing.T) {
	t.Parallel()

	code := []byte{
		0x03,             // 0: iconst_0
		0xaa, 0x00, 0x00, // 1: tableswitch, padded to 4
		0, 0, 0, 20, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 20, 0, 0, 0, 20,
		0x03,       // 24: iconst_0
		0xab, 0, 0, // 25: lookupswitch, padded to 28
		0, 0, 0, 20, 0, 0, 0, 1, 0, 0, 0, 5, 0, 0, 0, 20,
		0xc4, 0x84, 0x00, 0x01, 0x00, 0x05, // 44: wide iinc
		0x13, 0x00, 0x07, // 50: ldc_w #7
		0xb1, // 53: return
	}

	ins, err := classfile.Instructions(code)
	require.NoError(t, err)
	assert.Equal(t, []classfile.Instruction{
		{Offset: 0, Op: 0x03},
		{Offset: 1, Op: 0xaa},
		{Offset: 24, Op: 0x03},
		{Offset: 25, Op: 0xab},
		{Offset: 44, Op: 0xc4},
		{Offset: 50, Op: 0x13, Const: 7},
		{Offset: 53, Op: 0xb1},
	}, ins)
}

func TestInstructions_Truncated(t *testing.T) {
	t.Parallel()

	for name, code := range map[string][]byte{
		"switch":  {0xaa, 0, 0, 0},
		"operand": {0xb2, 0x00},
		"opcode":  {0xfe},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := classfile.Instructions(code)
			require.ErrorContains(t, err, domain.ErrInvalidClassFile.Error())
		})
	}
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	client := classfile.NewClass(java8, classfile.AccPublic|classfile.AccSuper, "a", "java/lang/Object")
	client.AddField(classfile.AccPrivate, "x", "I")
	addCode(client, client.AddMethod(classfile.AccPublic, "shared", "()V"), 0, []byte{0xb1})
	render := client.AddMethod(classfile.AccPublic, "render", "()V")
	renderer := client.Pool.AddClass("client/Renderer")
	hello := client.Pool.Append(classfile.Constant{Tag: classfile.TagString, A: client.Pool.AddUtf8("hello")})
	addCode(client, render, 1, []byte{
		0xbb, byte(renderer >> 8), byte(renderer), 0x57,
		0x12, byte(hello), 0x57,
		0xb1,
	})
	render.Attributes = append(render.Attributes, &classfile.Attribute{Name: client.Pool.AddUtf8("Custom"), Data: []byte{0, 1}})

	server := classfile.NewClass(java8, classfile.AccPublic|classfile.AccSuper, "a", "java/lang/Object")
	server.AddInterface("java/lang/Runnable")
	server.AddField(classfile.AccPrivate, "x", "I")
	server.AddField(classfile.AccPrivate, "y", "J")
	addCode(server, server.AddMethod(classfile.AccPublic, "shared", "()V"), 0, []byte{0xb1})
	addCode(server, server.AddMethod(classfile.AccPublic, "tick", "()V"), 0, []byte{0xb1})

	assembled, err := classfile.Assemble(classfile.Layout{
		Base:       server,
		Interfaces: []string{"java/lang/Runnable", "client/Listener"},
		Fields: []classfile.Part{
			{From: client, Member: client.Fields[0]},
			{From: server, Member: server.Fields[1]},
		},
		Methods: []classfile.Part{
			{From: client, Member: client.Methods[0]},
			{From: client, Member: render},
			{From: server, Member: server.Methods[1]},
		},
	})
	require.NoError(t, err)

	out := reparse(t, assembled)
	assert.Equal(t, "a", out.Name())
	assert.Equal(t, "java/lang/Object", out.SuperName())
	assert.Equal(t, []string{"java/lang/Runnable", "client/Listener"}, out.InterfaceNames())
	assert.Equal(t, []string{"shared()V", "render()V", "tick()V"}, methodNames(out))
	require.NotNil(t, out.FindField("x"))
	require.NotNil(t, out.FindField("y"))

	m := out.FindMethod("render", "()V")
	require.NotNil(t, m)
	require.Len(t, m.Attributes, 1, "unknown attributes are dropped")
	code, err := classfile.ParseCode(out.Attribute(m.Attributes, classfile.AttrCode).Data)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), code.MaxStack)

	ins, err := classfile.Instructions(code.Bytecode)
	require.NoError(t, err)
	require.Len(t, ins, 5)
	assert.Equal(t, "client/Renderer", out.Pool.ClassName(ins[0].Const))
	str := out.Pool.Get(ins[2].Const)
	assert.Equal(t, classfile.TagString, str.Tag)
	assert.Equal(t, "hello", out.Pool.Utf8(str.A))
}

func TestAssemble_LdcStaysAddressable(t *testing.T) {
	t.Parallel()

	base := classfile.NewClass(java8, classfile.AccPublic|classfile.AccSuper, "a", "java/lang/Object")
	// Enough referenced constants to push anything interned afterwards past
	// the one byte range.
	for i := range 300 {
		base.AddField(classfile.AccPrivate, "f"+string(rune('a'+i%26))+string(rune('a'+i/26)), "I")
	}

	src := classfile.NewClass(java8, classfile.AccPublic|classfile.AccSuper, "a", "java/lang/Object")
	m := src.AddMethod(classfile.AccPublic, "greet", "()V")
	hello := src.Pool.Append(classfile.Constant{Tag: classfile.TagString, A: src.Pool.AddUtf8("hello")})
	addCode(src, m, 1, []byte{0x12, byte(hello), 0x57, 0xb1})

	fields := make([]classfile.Part, len(base.Fields))
	for i, f := range base.Fields {
		fields[i] = classfile.Part{From: base, Member: f}
	}
	assembled, err := classfile.Assemble(classfile.Layout{
		Base:    base,
		Fields:  fields,
		Methods: []classfile.Part{{From: src, Member: m}},
	})
	require.NoError(t, err)

	out := reparse(t, assembled)
	greet := out.FindMethod("greet", "()V")
	code, err := classfile.ParseCode(out.Attribute(greet.Attributes, classfile.AttrCode).Data)
	require.NoError(t, err)
	ins, err := classfile.Instructions(code.Bytecode)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Pool.Utf8(out.Pool.Get(ins[0].Const).A))
}

func TestInvisibleAnnotations(t *testing.T) {
	t.Parallel()

	cf := classfile.NewClass(java8, classfile.AccPublic|classfile.AccSuper, "a", "java/lang/Object")
	f := cf.AddField(classfile.AccPrivate, "x", "I")
	require.NoError(t, cf.AddInvisibleAnnotation(&f.Attributes, "Lone/First;"))
	require.NoError(t, cf.AddInvisibleAnnotation(&f.Attributes, "Lone/Second;"))
	require.NoError(t, cf.AddInvisibleAnnotation(&cf.Attributes, "Lone/First;"))

	out := reparse(t, cf)
	descs, err := out.InvisibleAnnotations(out.FindField("x").Attributes)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lone/First;", "Lone/Second;"}, descs)

	descs, err = out.InvisibleAnnotations(out.Attributes)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lone/First;"}, descs)

	descs, err = out.InvisibleAnnotations(nil)
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestReferences(t *testing.T) {
	t.Parallel()

	cf := classfile.NewClass(java8, classfile.AccPublic|classfile.AccSuper, "a", "java/lang/Object")
	m := cf.AddMethod(classfile.AccPublic|classfile.AccStatic, "build", "(Lclient/Model;[Lclient/Arr;I)Lclient/Out;")
	call := methodRef(cf, "client/Util", "make", "(Lclient/Arg;)V")
	arr := cf.Pool.AddClass("[Lclient/Elem;")
	grid := cf.Pool.AddClass("[[Lclient/Grid;")
	addCode(cf, m, 2, []byte{
		0x01, 0xb8, byte(call >> 8), byte(call), // aconst_null; invokestatic
		0x03, 0xbd, byte(arr >> 8), byte(arr), 0x57, // iconst_0; anewarray; pop
		0x03, 0x03, 0xc5, byte(grid >> 8), byte(grid), 0x02, 0x57, // multianewarray; pop
		0x01, 0xb0, // aconst_null; areturn
	})

	refs, err := cf.References(m)
	require.NoError(t, err)
	assert.Equal(t, []string{"client/Model", "client/Out", "client/Arg", "client/Util", "client/Grid"}, refs)

	assert.Equal(t, []string{"client/Model", "client/Out"},
		classfile.DescriptorClasses("(Lclient/Model;[Lclient/Arr;[[IJ)Lclient/Out;"))
}
