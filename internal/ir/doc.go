// Package ir provides the foundational types shared by every lzrecv package.
//
// This package contains type definitions, the error vocabulary, canonical JSON
// and domain-separated hashing. All other internal packages import ir; ir
// imports nothing internal. This keeps ir the bottom layer with no cycles.
//
// Key design constraints:
//   - Addresses are solana.PublicKey values, never strings
//   - Fixed-width remote values (sender, guid, EVM address) are arrays, not slices
//   - All JSON tags use snake_case
//   - Amounts and counters are unsigned and checked, never wrapped
package ir
