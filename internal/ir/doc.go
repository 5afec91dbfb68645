// Package ir provides the scalar value model shared by every quarry package.
//
// This package contains value types and their canonical encoding only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is sealed: Null, Text, Int, Real, Bool, Time
//   - Real is always finite (NaN and Inf never enter a plan)
//   - Time is always UTC and renders with the fixed-width TimeLayout
//   - Fingerprints use canonical JSON and SHA-256 with domain separation
package ir
