// Package config loads the modalhub server configuration from a YAML file.
//
// Config fields:
//   - Server.WSHost/WSPort     — WebSocket hub listen address (default localhost:6790)
//   - Server.HTTPHost/HTTPPort — HTTP collaborator listen address (default localhost:6791)
//   - Server.SessionTTL        — how long closed sessions stay listed (default 5m)
//   - Log.Level                — debug | info | warn | error (hot-reloadable)
//   - Worker.Type              — echo | remote, resolved once at startup
//   - Worker.Modality          — audio | video, selects the stream adapter
//   - Worker.Endpoint/Timeout  — inference backend URL and per-call deadline
//   - Worker.Auth              — optional API-key header for the backend
//   - Audio.DefaultRate        — sample rate assumed for legacy binary frames
//   - Video.MaxFPS             — inbound frame-rate cap per connection
//   - Bridge                   — optional Redis pub/sub broadcast bridge
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on file changes (used for the log level).
package config
