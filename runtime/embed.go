// Package runtime embeds the C runtime translation unit that every
// compiled program links against, so cmd/snekc can drive gcc without
// shipping a separate file alongside the binary.
package runtime

import _ "embed"

// Source is the runtime's C source text.
//
//go:embed runtime.c
var Source []byte
