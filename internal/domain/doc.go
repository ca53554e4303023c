// Package domain holds the validated value types used at the edges of the
// service. Raw strings from forms and query parameters are parsed into these
// types exactly once; everything past the boundary works with values that are
// known to be well-formed.
package domain
