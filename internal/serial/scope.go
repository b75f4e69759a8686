package serial

import "strings"

// Scope addresses either the unsplit parent of a serial or one of its indents.
// Empty strings and NULL both mean Parent; callers convert at the edges with
// FromPtr or Indent and never compare indent numbers directly.
type Scope struct {
	indent string
}

// Parent is the scope of rows that belong to the serial as a whole.
func Parent() Scope {
	return Scope{}
}

// Indent returns the scope for one indent number. A blank id yields Parent.
func Indent(id string) Scope {
	return Scope{indent: strings.TrimSpace(id)}
}

// FromPtr converts a nullable column value into a Scope.
func FromPtr(id *string) Scope {
	if id == nil {
		return Parent()
	}
	return Indent(*id)
}

// IsParent reports whether the scope is the parent.
func (s Scope) IsParent() bool {
	return s.indent == ""
}

// ID returns the indent number, or "" for the parent.
func (s Scope) ID() string {
	return s.indent
}

// Ptr returns the value to store in a nullable indent_number column.
func (s Scope) Ptr() *string {
	if s.IsParent() {
		return nil
	}
	id := s.indent
	return &id
}

func (s Scope) String() string {
	if s.IsParent() {
		return "parent"
	}
	return "indent:" + s.indent
}
