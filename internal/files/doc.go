// Package files provides file system operations and discovery utilities
// for the pipeline directories.
//
// This package contains two main components:
//
// Discovery: Finds provider source files awaiting processing, cleaned
// outputs for the combine tool, and files matching glob patterns. Source
// file listings come back in name order so batch runs are deterministic.
//
// Manager: Basic file management operations such as copying, moving and
// deleting files relative to the pipeline layout. Moves try an atomic
// rename first and fall back to copy+delete for cross-filesystem paths.
//
// Example usage:
//
//	discovery := files.NewDiscovery(paths.Root)
//	sources, err := discovery.FindSourceFiles(paths.InputDir)
//
//	manager := files.NewManager(paths)
//	if manager.FileExists("archive/acme_jan.xlsx") {
//	    // Already processed
//	}
package files
