package secure

import (
	"errors"
	"fmt"
)

var (
	// ErrTooEarly is returned when an entity is read before the credential
	// fields needed to decrypt it have replicated. Retry on the next update.
	ErrTooEarly = errors.New("too early to decrypt this entity")

	// ErrDecrypt is returned when a field cannot be decrypted with the key
	// its role requires.
	ErrDecrypt = errors.New("cannot decrypt")
)

// Role is a tier of decryption authority.
type Role int

const (
	RoleGuest Role = iota
	RoleReader
	RoleMember
)

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleReader:
		return "reader"
	case RoleMember:
		return "member"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Field is the name of an entity field.
type Field string

const (
	FieldMeta        Field = "_"
	FieldPriv        Field = "priv"
	FieldEPriv       Field = "epriv"
	FieldReaderEPriv Field = "reader-epriv"
	FieldCreated     Field = "created"
	FieldName        Field = "name"
	FieldLastMessage Field = "lastMessage"
	FieldText        Field = "text"
	FieldHighlighted Field = "highlighted"
	FieldIndex       Field = "index"
	FieldParent      Field = "parent"
)

// Kind is an entity kind with its own field roles.
type Kind int

const (
	KindSpace Kind = iota
	KindStream
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindSpace:
		return "space"
	case KindStream:
		return "stream"
	case KindMessage:
		return "message"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RoleMap is the minimum role required to read each field.
type RoleMap map[Field]Role

var baseRoles = RoleMap{
	FieldMeta:        RoleGuest,
	FieldPriv:        RoleMember,
	FieldEPriv:       RoleMember,
	FieldReaderEPriv: RoleMember,
	FieldCreated:     RoleReader,
}

var kindRoles = map[Kind]RoleMap{
	KindSpace: {
		FieldName: RoleReader,
	},
	KindStream: {
		FieldName:        RoleReader,
		FieldLastMessage: RoleGuest,
	},
	KindMessage: {
		FieldText:        RoleReader,
		FieldHighlighted: RoleReader,
		FieldIndex:       RoleReader,
		FieldParent:      RoleGuest,
	},
}

// Roles returns the role map of kind.
func Roles(kind Kind) RoleMap {
	roles := make(RoleMap, len(baseRoles)+len(kindRoles[kind]))
	for f, r := range baseRoles {
		roles[f] = r
	}
	for f, r := range kindRoles[kind] {
		roles[f] = r
	}
	return roles
}

// Capabilities are the symmetric keys a caller holds.
type Capabilities struct {
	Member string // epriv
	Reader string // reader-epriv
}

func (c Capabilities) key(role Role) string {
	switch role {
	case RoleMember:
		return c.Member
	case RoleReader:
		return c.Reader
	default:
		return ""
	}
}

// Decrypt returns a copy of e with every ciphertext field the caller may read
// decrypted and every other ciphertext field removed. e is not modified.
//
// A member without the reader key recovers it from the entity's own
// reader-epriv field; ErrTooEarly means that field has not arrived yet.
func Decrypt(c Crypto, e *Entity, caps Capabilities, roles RoleMap) (*Entity, error) {
	if e == nil {
		return nil, nil
	}

	if caps.Reader == "" && caps.Member != "" {
		raw, ok := e.String(string(FieldReaderEPriv))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTooEarly, ID(e))
		}
		v, err := c.Decrypt(raw, caps.Member)
		if err != nil {
			return nil, fmt.Errorf("%w: reader key of %s: %v", ErrDecrypt, ID(e), err)
		}
		reader, ok := v.AsString()
		if !ok {
			return nil, fmt.Errorf("%w: reader key of %s is not a string", ErrDecrypt, ID(e))
		}
		caps.Reader = reader
	}

	out := e.Clone()
	for field, v := range e.Fields {
		if !IsCiphertext(v) {
			continue
		}
		role, known := roles[Field(field)]
		key := caps.key(role)
		if !known || key == "" {
			delete(out.Fields, field)
			continue
		}
		raw, _ := v.AsString()
		plain, err := c.Decrypt(raw, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s as %s: %v", ErrDecrypt, ID(e), field, role, err)
		}
		out.Fields[field] = plain
	}
	return out, nil
}
