// Package sink delivers the alert batch of a cycle to its destination.
//
// Implementations live in subpackages: logsink writes to the process log,
// telegram posts to a chat, pubsub publishes to a Google Cloud topic and memory
// records batches for tests.
package sink
