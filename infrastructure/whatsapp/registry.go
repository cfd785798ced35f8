package whatsapp

import (
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
)

// Registry holds one connected whatsmeow client per instance. Connection
// lifecycle (QR pairing, reconnects) registers and unregisters here; the
// transport only reads.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*whatsmeow.Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*whatsmeow.Client)}
}

func (r *Registry) Register(instanceID string, client *whatsmeow.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[instanceID] = client
}

func (r *Registry) Unregister(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, instanceID)
}

// Get returns the live client for an instance, or an error when the
// instance has no active connection.
func (r *Registry) Get(instanceID string) (*whatsmeow.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[instanceID]
	if !ok || client == nil {
		return nil, fmt.Errorf("instance %s has no active connection", instanceID)
	}
	return client, nil
}

// Connected reports whether the instance has a logged-in, connected client.
func (r *Registry) Connected(instanceID string) bool {
	client, err := r.Get(instanceID)
	if err != nil {
		return false
	}
	return client.IsConnected() && client.IsLoggedIn()
}
