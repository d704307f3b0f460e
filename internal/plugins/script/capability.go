package script

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Capability names a group of tree module functions a script may call.
// Capabilities are hierarchical: granting "tree" grants "tree.read" and
// "tree.write".
type Capability string

// Capabilities a manifest can declare.
const (
	// CapabilityTree grants every tree capability.
	CapabilityTree Capability = "tree"

	// CapabilityRead allows tree.state, tree.node and tree.roots.
	CapabilityRead Capability = "tree.read"

	// CapabilityWrite allows tree.open, tree.close, tree.toggle and
	// tree.select.
	CapabilityWrite Capability = "tree.write"

	// CapabilityEvent allows tree.on, tree.once, tree.off, tree.declare and
	// tree.trigger.
	CapabilityEvent Capability = "event"

	// CapabilityData allows tree.data.
	CapabilityData Capability = "data"

	// CapabilityPlugin allows tree.require.
	CapabilityPlugin Capability = "plugin"
)

// ErrUnknownCapability is returned for a manifest capability that does not
// exist.
var ErrUnknownCapability = errors.New("manifest: unknown capability")

var capabilities = map[Capability]string{
	CapabilityTree:   "read and change the tree",
	CapabilityRead:   "read node state",
	CapabilityWrite:  "open, close and select nodes",
	CapabilityEvent:  "listen to and trigger events",
	CapabilityData:   "read and write data shared between plugins",
	CapabilityPlugin: "load other plugins",
}

// IsValidCapability reports whether c is a known capability.
func IsValidCapability(c Capability) bool {
	_, ok := capabilities[c]
	return ok
}

// Describe returns what c allows.
func Describe(c Capability) string {
	return capabilities[c]
}

// AllCapabilities returns every known capability, sorted.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(capabilities))
	for c := range capabilities {
		caps = append(caps, c)
	}
	slices.Sort(caps)
	return caps
}

// Implies reports whether holding granted allows required.
func Implies(granted, required Capability) bool {
	return granted == required || strings.HasPrefix(string(required), string(granted)+".")
}

// grants is the set of capabilities held by one script. A nil set holds
// everything.
type grants []Capability

func (g grants) allows(c Capability) bool {
	if g == nil {
		return true
	}
	return slices.ContainsFunc(g, func(held Capability) bool { return Implies(held, c) })
}

// CapabilityError reports a call the script holds no capability for.
type CapabilityError struct {
	Plugin     string
	Capability Capability
	Function   string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: capability %q required for tree.%s", e.Plugin, e.Capability, e.Function)
}
