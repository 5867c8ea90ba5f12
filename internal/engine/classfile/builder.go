package classfile

// NewClass returns an empty class. super may be empty for java/lang/Object.
func NewClass(version Version, access uint16, name, super string) *ClassFile {
	cf := &ClassFile{Version: version, Pool: newPool(), Access: access}
	cf.This = cf.Pool.AddClass(name)
	if super != "" {
		cf.Super = cf.Pool.AddClass(super)
	}
	return cf
}

// AddInterface appends a direct interface.
func (cf *ClassFile) AddInterface(name string) {
	cf.Interfaces = append(cf.Interfaces, cf.Pool.AddClass(name))
}

// AddField appends a field declaration.
func (cf *ClassFile) AddField(access uint16, name, desc string) *Member {
	f := &Member{Access: access, Name: cf.Pool.AddUtf8(name), Desc: cf.Pool.AddUtf8(desc)}
	cf.Fields = append(cf.Fields, f)
	return f
}

// AddMethod appends a method declaration.
func (cf *ClassFile) AddMethod(access uint16, name, desc string) *Member {
	m := &Member{Access: access, Name: cf.Pool.AddUtf8(name), Desc: cf.Pool.AddUtf8(desc)}
	cf.Methods = append(cf.Methods, m)
	return m
}

// FindField returns the field called name, or nil.
func (cf *ClassFile) FindField(name string) *Member {
	for _, f := range cf.Fields {
		if cf.Pool.Utf8(f.Name) == name {
			return f
		}
	}
	return nil
}

// FindMethod returns the method with the given name and descriptor, or nil.
func (cf *ClassFile) FindMethod(name, desc string) *Member {
	for _, m := range cf.Methods {
		if cf.Pool.Utf8(m.Name) == name && cf.Pool.Utf8(m.Desc) == desc {
			return m
		}
	}
	return nil
}
