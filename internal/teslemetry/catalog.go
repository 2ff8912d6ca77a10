package teslemetry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Products is the inventory of an account.
type Products struct {
	Vehicles    map[string]Vehicle     // keyed by VIN
	EnergySites map[string]*EnergySite // keyed by site ID
	FetchedAt   time.Time
}

// Catalog caches the account's products and keeps one SiteAPI per energy
// site alive across refreshes so pollers are not restarted.
//
// Thread Safety: all methods are safe for concurrent use.
type Catalog struct {
	client    *Client
	intervals PollingIntervals
	logger    Logger

	mu       sync.RWMutex
	products *Products
	sites    map[string]*SiteAPI

	refreshMu sync.Mutex
	onError   ErrorFunc
}

// NewCatalog creates an empty catalog. Call Refresh or Products to load it.
func NewCatalog(client *Client, intervals PollingIntervals, logger Logger) *Catalog {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Catalog{
		client:    client,
		intervals: intervals,
		logger:    logger,
		sites:     make(map[string]*SiteAPI),
	}
}

// SetPollErrorHandler registers fn on every current and future site poller.
func (c *Catalog) SetPollErrorHandler(fn ErrorFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
	for _, api := range c.sites {
		api.poller.SetErrorHandler(fn)
	}
}

// Refresh fetches products and metadata from the API and replaces the cache.
// Pollers of sites that left the account are closed. On failure the previous
// cache is kept.
func (c *Catalog) Refresh(ctx context.Context) (*Products, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	vehicles, sites, err := c.client.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching products: %w", err)
	}

	var md *Metadata
	if len(vehicles) > 0 {
		md, err = c.client.Metadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching metadata: %w", err)
		}
	}

	products := &Products{
		Vehicles:    make(map[string]Vehicle, len(vehicles)),
		EnergySites: make(map[string]*EnergySite, len(sites)),
		FetchedAt:   time.Now().UTC(),
	}
	for _, v := range vehicles {
		if md != nil {
			if meta, ok := md.Vehicles[v.VIN]; ok {
				v.Metadata = meta
			}
		}
		products.Vehicles[v.VIN] = v
	}

	c.mu.Lock()
	current := make(map[string]*SiteAPI, len(sites))
	for _, s := range sites {
		api, ok := c.sites[s.ID]
		if !ok {
			api = NewSiteAPI(c.client, s.ID, c.intervals, c.logger)
			if c.onError != nil {
				api.poller.SetErrorHandler(c.onError)
			}
		}
		current[s.ID] = api
		products.EnergySites[s.ID] = &EnergySite{
			ID:           s.ID,
			Name:         s.SiteName,
			ResourceType: s.ResourceType,
			API:          api,
		}
	}
	var removed []*SiteAPI
	for id, api := range c.sites {
		if _, ok := current[id]; !ok {
			removed = append(removed, api)
		}
	}
	c.sites = current
	c.products = products
	c.mu.Unlock()

	for _, api := range removed {
		c.logger.Info("energy site removed from account", "site_id", api.SiteID())
		api.Close()
	}

	c.logger.Info("products refreshed", "vehicles", len(products.Vehicles), "energy_sites", len(products.EnergySites))
	return products, nil
}

// Products returns the cached products, fetching them on first use.
func (c *Catalog) Products(ctx context.Context) (*Products, error) {
	c.mu.RLock()
	products := c.products
	c.mu.RUnlock()
	if products != nil {
		return products, nil
	}
	return c.Refresh(ctx)
}

// EnergySite returns a cached energy site by ID.
func (c *Catalog) EnergySite(id string) (*EnergySite, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.products == nil {
		return nil, false
	}
	site, ok := c.products.EnergySites[id]
	return site, ok
}

// Close stops every site poller.
func (c *Catalog) Close() {
	c.mu.Lock()
	sites := c.sites
	c.sites = make(map[string]*SiteAPI)
	c.mu.Unlock()

	for _, api := range sites {
		api.Close()
	}
}
