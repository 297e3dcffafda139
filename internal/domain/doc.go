// Package domain contains the core types of the NTN relay pipeline.
//
// These types carry no behaviour beyond small derivations and have no
// dependencies on infrastructure. They are shared by the queue, the
// readiness monitor, the uplink worker and the downlink listener.
//
// # Core Types
//
//   - [QueueItem]: a pending measurement record owned by the persistent queue
//   - [ReadinessSnapshot]: one consistent view of the dongle status flags
//   - [DownlinkMessage]: an inbound message as received and decoded
//   - [UplinkRecord]: the outcome of one transmitted or dropped item
//   - [Measurement]: the payload captured and sent uplink
package domain
