package dataprocessing

// Transform is a named, pure step from one table to another. Apply must not
// modify its argument.
type Transform interface {
	Name() string
	Apply(t *Table) (*Table, error)
}

// TransformFunc edits a private copy of the input table in place
type TransformFunc func(t *Table) error

type namedTransform struct {
	name string
	fn   TransformFunc
}

// NewTransform labels fn. The returned Transform clones its input before
// calling fn, so fn is free to mutate the table it receives.
func NewTransform(name string, fn TransformFunc) Transform {
	return &namedTransform{name: name, fn: fn}
}

func (n *namedTransform) Name() string { return n.name }

func (n *namedTransform) Apply(t *Table) (*Table, error) {
	out := t.Clone()
	if err := n.fn(out); err != nil {
		return nil, err
	}
	return out, nil
}
