package rframe

import (
	"slices"
)

// maxLevels is the number of distinct labels a 16-bit code can address.
const maxLevels = 1 << 16

// Levels is the label dictionary of a Factor column. Codes index into the
// label list; the reverse map gives label -> code.
type Levels struct {
	labels []string
	codes  map[string]uint16
	extend bool
}

// NewLevels creates a dictionary with the given labels in code order.
func NewLevels(labels ...string) (*Levels, error) {
	l := &Levels{codes: make(map[string]uint16, len(labels))}
	for _, label := range labels {
		if _, dup := l.codes[label]; dup {
			return nil, newError("factor", ErrNameCollision, "duplicate level %q", label)
		}
		if _, err := l.add(label); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func newExtendableLevels() *Levels {
	return &Levels{codes: make(map[string]uint16), extend: true}
}

// Len returns the number of labels.
func (l *Levels) Len() int {
	if l == nil {
		return 0
	}
	return len(l.labels)
}

// Labels returns a copy of the labels in code order.
func (l *Levels) Labels() []string {
	if l == nil {
		return nil
	}
	return slices.Clone(l.labels)
}

// Label returns the label for code.
func (l *Levels) Label(code uint16) (string, bool) {
	if l == nil || int(code) >= len(l.labels) {
		return "", false
	}
	return l.labels[code], true
}

// Code returns the code for label.
func (l *Levels) Code(label string) (uint16, bool) {
	if l == nil {
		return 0, false
	}
	c, ok := l.codes[label]
	return c, ok
}

// AutoExtend reports whether unseen labels are added on parse/assignment
// instead of being rejected.
func (l *Levels) AutoExtend() bool {
	return l != nil && l.extend
}

// SetAutoExtend toggles automatic dictionary growth.
func (l *Levels) SetAutoExtend(on bool) {
	l.extend = on
}

func (l *Levels) add(label string) (uint16, error) {
	if len(l.labels) >= maxLevels {
		return 0, newError("factor", ErrOutOfBounds, "more than %d levels adding %q", maxLevels, label)
	}
	code := uint16(len(l.labels))
	l.labels = append(l.labels, label)
	l.codes[label] = code
	return code, nil
}

// intern resolves label, growing the dictionary when auto-extend is on.
func (l *Levels) intern(op, label string) (uint16, error) {
	if c, ok := l.codes[label]; ok {
		return c, nil
	}
	if !l.extend {
		return 0, newError(op, ErrParse, "unknown factor level %q", label)
	}
	return l.add(label)
}

func (l *Levels) clone() *Levels {
	if l == nil {
		return nil
	}
	c := &Levels{
		labels: slices.Clone(l.labels),
		codes:  make(map[string]uint16, len(l.codes)),
		extend: l.extend,
	}
	for k, v := range l.codes {
		c.codes[k] = v
	}
	return c
}

func (l *Levels) equal(o *Levels) bool {
	if l == o {
		return true
	}
	return slices.Equal(l.labels, o.labels)
}

// translate maps every code of src into l, adding labels l lacks.
func (l *Levels) translate(src *Levels) ([]uint16, error) {
	mapping := make([]uint16, src.Len())
	for code, label := range src.labels {
		c, ok := l.codes[label]
		if !ok {
			var err error
			if c, err = l.add(label); err != nil {
				return nil, err
			}
		}
		mapping[code] = c
	}
	return mapping, nil
}

// recode returns src's codes expressed in l's dictionary.
func (l *Levels) recode(codes []uint16, valid []bool, src *Levels) ([]uint16, error) {
	if l.equal(src) {
		return codes, nil
	}
	mapping, err := l.translate(src)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(codes))
	for i, c := range codes {
		if valid[i] {
			out[i] = mapping[c]
		}
	}
	return out, nil
}
