// Package shared provides common utilities and test helpers used across the
// codebase. It serves as a central location for functionality that doesn't
// belong to any specific domain or architectural layer.
//
// # Structure
//
// The package is organized into the following components:
//
// - testutil: testing utilities shared by the package suites
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//   - BufferedSlogHandler and NewTestLogger for capturing and asserting on
//     structured log output
//   - TableFixtures with canned raw tables (clean, banner, merged headers,
//     year+month headers, sparse columns), a sales contract and a default
//     template, plus CSV and corrupted-file writers for ingest tests
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    fixtures := testutil.NewTableFixtures(t.TempDir())
//	    table := fixtures.GetCleanTable()
//
//	    // Run the code under test against table
//	}
//
// # Usage Guidelines
//
// This package should only contain test utilities used by multiple packages
// and generic helpers with no domain-specific logic. Business logic belongs
// in the domain packages, and nothing here may depend on them.
package shared
