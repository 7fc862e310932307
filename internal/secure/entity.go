// Package secure holds the identity model of replicated entities and the
// signed, encrypted write path that every entity mutation goes through.
//
// Addresses follow a fixed convention shared by every replica:
//
//	~{pub}          root entity owned by the key pair pub
//	{sub}~{pub}.    sub-collection or child of that root entity
//
// Links between entities are {"#": address}.
package secure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dyluth/streams/pkg/graph"
)

// Entity is a snapshot of a replicated record.
type Entity = graph.Node

var (
	streamIDPattern = regexp.MustCompile(`(~.+)\.$`)
	ownerPattern    = regexp.MustCompile(`~([A-Za-z0-9_-]+)\.?$`)
)

// ID returns the address-derived identifier of e: the soul it is stored
// under, or the address it was reached through. It returns "" for nil.
func ID(e *Entity) string {
	if e == nil {
		return ""
	}
	if e.Soul != "" {
		return e.Soul
	}
	return e.Get
}

// PubOf returns the public key of a root address.
func PubOf(id string) string {
	return strings.TrimPrefix(id, "~")
}

// RootAddress returns the address of the root entity owned by pub.
func RootAddress(pub string) string {
	return "~" + pub
}

// SubAddress returns the address of sub inside the root entity owned by pub.
func SubAddress(sub, pub string) string {
	return sub + "~" + pub + "."
}

// StreamIDOf returns the stream a message address belongs to.
func StreamIDOf(messageID string) (string, error) {
	m := streamIDPattern.FindStringSubmatch(messageID)
	if m == nil {
		return "", fmt.Errorf("not a message address: %q", messageID)
	}
	return m[1], nil
}

// OwnerOf returns the public key that owns soul, if soul lives in user space.
func OwnerOf(soul string) (string, bool) {
	m := ownerPattern.FindStringSubmatch(soul)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LocalID returns the part of a sub address before its owner, e.g. the
// message uuid of {uuid}~{pub}.
func LocalID(id string) string {
	if i := strings.Index(id, "~"); i > 0 {
		return id[:i]
	}
	return id
}
