package imprint

// Capability names an interface the ledger implements, for external tooling
// that checks what a ledger supports.
type Capability string

// The fixed set of supported capabilities.
const (
	CapabilityDiscovery  Capability = "imprint.discovery.v1"
	CapabilityEditions   Capability = "imprint.editions.v1"
	CapabilityMetadata   Capability = "imprint.metadata-uri.v1"
	CapabilitySettlement Capability = "imprint.settlement.v1"
)

var supported = map[Capability]bool{
	CapabilityDiscovery:  true,
	CapabilityEditions:   true,
	CapabilityMetadata:   true,
	CapabilitySettlement: true,
}

// Supports reports whether the ledger implements the capability.
func Supports(c Capability) bool {
	return supported[c]
}

// Capabilities lists the supported capabilities.
func Capabilities() []Capability {
	return []Capability{
		CapabilityDiscovery,
		CapabilityEditions,
		CapabilityMetadata,
		CapabilitySettlement,
	}
}
