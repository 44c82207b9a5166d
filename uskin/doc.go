// Package uskin acquires readings from a uSkin tactile sensor: a grid of
// three-axis magnetic sensing nodes that stream one CAN message each per
// scan.
//
// The pipeline, leaves first:
//
//   - the identifier codec maps a node's BCD-style CAN identifier to its
//     row-major matrix index and back (Grid);
//   - the frame decoder turns one bus frame into a NodeReading;
//   - the Reassembler pulls frames from a transport and orders them into
//     one Frame per scan, recovering from out-of-order delivery with a
//     single-frame lookahead;
//   - calibration samples resting frames into a per-node minimum baseline
//     (CalibrationTable);
//   - normalization rescales raw readings into bounded percentages.
//
// Sensor ties the pieces together and hands every completed frame to the
// registered FrameSinks.
//
// A Sensor is not safe for concurrent use. Transport receives block with
// no timeout; close the transport from another goroutine to unblock a
// pending RetrieveFrame.
package uskin
