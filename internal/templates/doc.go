// Package templates persists replayable mapping templates.
//
// A Store holds one template per key. The file backend writes
// <key>.df-template.json files with an atomic temp-and-rename so a crashed
// save never leaves a half-written template; the postgres backend upserts
// the same JSON payload into a templates table for deployments that share
// templates between instances. Both validate on save and upgrade older
// template versions on load.
package templates
