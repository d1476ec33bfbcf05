// Package output writes the artifacts that accompany an export.
//
// The package is organized around three concerns:
//
//   - Writers (writer.go): destinations via the [Writer] interface, with
//     [StreamWriter] and [FileWriter] implementations.
//
//   - Sidecars (sidecar.go): the ".sha256" digest file and ".sig" signature
//     file written next to an LDIF file, or printed for stream exports.
//
//   - Summaries (serializer.go, registry.go): a machine-readable record of
//     one run, serialized as YAML or JSON.
package output
