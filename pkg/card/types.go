// Package card fetches and validates the capability descriptors (agent cards)
// that remote agents publish about themselves.
package card

// DefaultPath is the well-known discovery path appended to an agent address.
const DefaultPath = "/.well-known/agent.json"

// Capabilities lists optional protocol features an agent supports.
type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications,omitempty"`
}

// Skill is one unit of capability an agent advertises.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
}

// Descriptor is the agent card as published by a remote agent. Immutable once fetched.
type Descriptor struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills"`

	// Address is the discovery address the card was fetched from. Not part of the wire shape.
	Address string `json:"-"`
}
