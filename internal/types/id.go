// README: Opaque identifiers assigned by the remote service.
package types

type ID string

func (id ID) String() string { return string(id) }

func (id ID) Empty() bool { return id == "" }
