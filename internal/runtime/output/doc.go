// Package output validates probe return values against the line item
// contract: text, progress and badge. Validation fails closed; one bad
// element rejects the whole result.
package output
