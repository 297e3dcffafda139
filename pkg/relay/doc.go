// Package relay runs the NTN dongle transmission pipeline.
//
// A Relay owns a persistent queue of outbound measurements, a readiness
// monitor polling the dongle status registers, an uplink worker that
// drains the queue while the dongle is fully ready, and a downlink
// listener that records inbound messages and auto-captures a measurement
// when one carries a trigger key. The web layer talks only to Relay.
//
// Example usage:
//
//	cfg := relay.DefaultConfig()
//	cfg.StateDir = "/var/lib/ntnrelay/queue"
//	r, err := relay.New(cfg, driver, relay.WithLogger(logger), relay.WithMetrics())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	if err := r.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	id, err := r.CaptureNow(payload)
package relay
