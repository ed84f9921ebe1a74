package models

// Component is the catalog collaborator's view of a hardware component.
// Read-only from the pricing pipeline's perspective; the canonical name is
// what the scrapers search for.
type Component struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}
