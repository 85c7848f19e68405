// Package settings holds the user's plugin order and disabled list and
// persists them under the "plugins" key of settings.json.
package settings
