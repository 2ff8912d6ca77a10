package teslemetry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_RefreshJoinsMetadata(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(http.MethodGet, "/api/1/products", http.StatusOK, productsBody)
	api.handle(http.MethodGet, "/api/1/metadata", http.StatusOK, metadataBody)

	catalog := NewCatalog(api.client(testToken), PollingIntervals{SiteInfo: time.Minute, LiveStatus: time.Minute}, nil)
	defer catalog.Close()

	products, err := catalog.Products(context.Background())
	require.NoError(t, err)

	v, ok := products.Vehicles["5YJ3E1EA7KF000001"]
	require.True(t, ok)
	assert.True(t, bool(v.Metadata.FleetTelemetry))

	site, ok := catalog.EnergySite("2252180000001")
	require.True(t, ok)
	assert.Equal(t, "Home", site.Name)
	require.NotNil(t, site.API)
	assert.Equal(t, "2252180000001", site.API.SiteID())

	_, ok = catalog.EnergySite("missing")
	assert.False(t, ok)
}

func TestCatalog_RefreshKeepsSiteAPI(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(http.MethodGet, "/api/1/products", http.StatusOK, productsBody)
	api.handle(http.MethodGet, "/api/1/metadata", http.StatusOK, metadataBody)

	catalog := NewCatalog(api.client(testToken), PollingIntervals{}, nil)
	defer catalog.Close()

	ctx := context.Background()
	_, err := catalog.Refresh(ctx)
	require.NoError(t, err)
	first, _ := catalog.EnergySite("2252180000001")

	_, err = catalog.Refresh(ctx)
	require.NoError(t, err)
	second, _ := catalog.EnergySite("2252180000001")

	assert.Same(t, first.API, second.API)
}

func TestCatalog_RefreshClosesRemovedSites(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(http.MethodGet, "/api/1/products", http.StatusOK, productsBody)
	api.handle(http.MethodGet, "/api/1/metadata", http.StatusOK, metadataBody)
	api.handle(http.MethodGet, "/api/1/energy_sites/2252180000001/site_info", http.StatusOK, `{"response":null}`)

	catalog := NewCatalog(api.client(testToken), PollingIntervals{SiteInfo: time.Minute}, nil)
	defer catalog.Close()

	ctx := context.Background()
	_, err := catalog.Refresh(ctx)
	require.NoError(t, err)
	site, ok := catalog.EnergySite("2252180000001")
	require.True(t, ok)
	site.API.RequestPolling(TopicSiteInfo)
	require.True(t, site.API.poller.Active(TopicSiteInfo))

	api.handle(http.MethodGet, "/api/1/products", http.StatusOK,
		`{"response":[{"id":1,"vin":"5YJ3E1EA7KF000001","display_name":"Model 3"}],"count":1}`)
	products, err := catalog.Refresh(ctx)
	require.NoError(t, err)

	assert.Empty(t, products.EnergySites)
	_, ok = catalog.EnergySite("2252180000001")
	assert.False(t, ok)
	assert.False(t, site.API.poller.Active(TopicSiteInfo))

	// A closed poller ignores further requests.
	site.API.RequestPolling(TopicSiteInfo)
	assert.False(t, site.API.poller.Active(TopicSiteInfo))
}

func TestCatalog_RefreshFailureKeepsCache(t *testing.T) {
	api := newFakeAPI(t)
	catalog := NewCatalog(api.client(testToken), PollingIntervals{}, nil)
	defer catalog.Close()

	_, err := catalog.Products(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok := catalog.EnergySite("2252180000001")
	assert.False(t, ok)
}

func TestSiteAPI_PollsSiteInfo(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(http.MethodGet, "/api/1/energy_sites/7/site_info", http.StatusOK,
		`{"response":{"id":"7","site_name":"Cabin","components":{"battery":true}}}`)
	api.handle(http.MethodGet, "/api/1/energy_sites/7/live_status", http.StatusOK, `{"response":null}`)

	site := NewSiteAPI(api.client(testToken), "7", PollingIntervals{}, nil)
	defer site.Close()

	var got []Event
	site.On(TopicSiteInfo, func(ev Event) { got = append(got, ev) })
	site.On(TopicLiveStatus, func(ev Event) { got = append(got, ev) })

	ctx := context.Background()
	require.NoError(t, site.poller.Poll(ctx, TopicSiteInfo))
	require.NoError(t, site.poller.Poll(ctx, TopicLiveStatus))

	require.Len(t, got, 2)
	info, ok := got[0].Response.(*SiteInfo)
	require.True(t, ok)
	assert.True(t, info.Components.Battery)
	assert.Nil(t, got[1].Response, "empty payload is delivered as nil")
}
