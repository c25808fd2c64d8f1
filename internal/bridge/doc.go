// Package bridge connects multiple hub instances through a Redis pub/sub
// channel so a broadcast reaches clients regardless of which instance they
// are connected to. It is optional and enabled via the bridge config
// section.
package bridge
