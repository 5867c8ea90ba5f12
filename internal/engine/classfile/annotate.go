package classfile

// AddInvisibleAnnotation appends a marker annotation of type desc, without
// elements, to the RuntimeInvisibleAnnotations attribute in attrs.
func (cf *ClassFile) AddInvisibleAnnotation(attrs *[]*Attribute, desc string) error {
	typ := cf.Pool.AddUtf8(desc)

	w := &writer{}
	if a := cf.Attribute(*attrs, AttrInvisibleAnnotations); a != nil {
		r := newReader(a.Data)
		n := r.u2()
		if r.err != nil {
			return r.err
		}
		w.u2(n + 1)
		w.raw(a.Data[2:])
		w.u2(typ)
		w.u2(0)
		a.Data = w.buf
		return nil
	}

	w.u2(1)
	w.u2(typ)
	w.u2(0)
	*attrs = append(*attrs, &Attribute{Name: cf.Pool.AddUtf8(AttrInvisibleAnnotations), Data: w.buf})
	return nil
}

// InvisibleAnnotations returns the type descriptors of the annotations in
// the RuntimeInvisibleAnnotations attribute of attrs.
func (cf *ClassFile) InvisibleAnnotations(attrs []*Attribute) ([]string, error) {
	a := cf.Attribute(attrs, AttrInvisibleAnnotations)
	if a == nil {
		return nil, nil
	}
	c := &copier{r: newReader(a.Data), w: &writer{}}
	c.annotations()
	if err := c.finish(); err != nil {
		return nil, err
	}
	descs := make([]string, 0, len(c.types))
	for _, t := range c.types {
		descs = append(descs, cf.Pool.Utf8(t))
	}
	return descs, nil
}
