// Package cambang is a camera-orchestration runtime that mediates between a
// host application and one or more platform camera providers. The runtime
// is authoritative for policy — arbitration, lifecycle, retention, and
// snapshot publication — while providers (package provider) merely execute
// platform API calls and report facts.
//
// A single explicit *Core value, owned by the embedder, is the entry
// point: New constructs one from a Config and a provider.Camera, Run drives
// its event loop, and the command methods (EngageDevice, CreateStream, ...)
// are the host-facing API (§6.1). Published state is observed through
// Subscribe and Snapshot.
package cambang
