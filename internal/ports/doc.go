// Package ports defines the interfaces that connect the relay pipeline to
// infrastructure adapters.
//
// # Port Interfaces
//
//   - [Driver]: the NTN dongle (send, status registers, downlink inbox)
//   - [ServiceModeReader], [NetworkReader]: optional driver capabilities
//   - [Queue]: the durable FIFO of pending measurements
//   - [Logger]: structured logging abstraction
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters, internal/queue) provide the Modbus driver,
// the simulated driver, the journal-backed queue and the zerolog logger.
package ports
