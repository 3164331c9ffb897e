package application

import (
	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

// VendorRegistry holds one VendorClient per vendor. It is built once at
// startup and read-only afterwards.
type VendorRegistry struct {
	clients map[model.Vendor]driven.VendorClient
}

// NewVendorRegistry creates a registry keyed by each client's Vendor(). A
// later client of the same vendor wins.
func NewVendorRegistry(clients ...driven.VendorClient) *VendorRegistry {
	r := &VendorRegistry{clients: make(map[model.Vendor]driven.VendorClient, len(clients))}
	for _, c := range clients {
		r.clients[c.Vendor()] = c
	}
	return r
}

// Get returns the client for vendor, or false if none is registered.
func (r *VendorRegistry) Get(vendor model.Vendor) (driven.VendorClient, bool) {
	c, ok := r.clients[vendor]
	return c, ok
}
