// Package cluster coordinates a fixed set of replica nodes.
//
// This package handles:
//   - Coordinator election by invitation and merging of rival groups
//   - Group membership, generations and recovery after failures
//   - Activation of replication on the elected master
//   - Admission of service-layer updates through the update gate
package cluster
