/*
resource.go - Resource type registration and lookup

PURPOSE:
  Provides a registry for domain packages to register their resource types.
  Storage reads resource IDs back as strings; the registry turns them into
  the concrete domain type again.

USAGE:
  // In leave/types.go
  func init() {
      for _, t := range AllLeaveTypes {
          generic.RegisterResource(t)
      }
  }

  // In a store
  resourceType := generic.GetOrCreateResource("EARNED") // returns leave.Earned
*/
package generic

import "sync"

// =============================================================================
// RESOURCE REGISTRY
// =============================================================================

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource makes r resolvable by its ID. Later registrations
// with the same ID win.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource returns nil for unregistered IDs.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// =============================================================================
// STRING RESOURCE - Fallback
// =============================================================================

// StringResource is a simple string-based resource type, used when a
// stored ID has no registered domain type.
type StringResource struct {
	ID     string
	Domain string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }

// GetOrCreateResource resolves id, falling back to a StringResource so a
// row written by an older policy table still loads.
func GetOrCreateResource(id string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id, Domain: "unknown"}
}
