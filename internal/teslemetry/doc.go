// Package teslemetry is a client for the Teslemetry cloud API.
//
// It covers the parts of the API the bridge needs: the product list,
// account metadata, energy site live status and site info, and the energy
// site setters (backup reserve, off-grid vehicle charging reserve,
// operation mode, storm mode, grid import/export).
//
// A Catalog caches the product list and binds each energy site to a
// SiteAPI. Each SiteAPI owns a Poller that fetches the "siteInfo" and
// "liveStatus" topics on independent tickers while at least one consumer
// has requested them:
//
//	catalog := teslemetry.NewCatalog(client, intervals, log)
//	site, ok := catalog.EnergySite("12345")
//	stop := site.API.RequestPolling(teslemetry.TopicLiveStatus)
//	off := site.API.On(teslemetry.TopicLiveStatus, func(ev teslemetry.Event) {
//	    status, _ := ev.Response.(*teslemetry.LiveStatus)
//	    ...
//	})
//	defer stop()
//	defer off()
package teslemetry
