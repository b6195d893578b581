package catalog

// Registration is the body sent to the catalog agent to register a service
// instance. Name is the app-name, ID is the task-id, Address/Port are the
// task's host and first port.
type Registration struct {
	Name    string   `json:"Name"`
	ID      string   `json:"ID"`
	Address string   `json:"Address"`
	Port    int      `json:"Port"`
	Tags    []string `json:"Tags"`
}

// AgentService is a service instance as reported by an agent's local
// services listing.
type AgentService struct {
	Service string   `json:"Service"`
	ID      string   `json:"ID"`
	Address string   `json:"Address"`
	Port    int      `json:"Port"`
	Tags    []string `json:"Tags"`
}

// Node is a cluster member as reported by the cluster-wide node list.
type Node struct {
	Address string `json:"Address"`
}
