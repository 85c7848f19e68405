// Package supervisor bounds a probe run by a deadline and reduces it to a
// single Settlement.
package supervisor
