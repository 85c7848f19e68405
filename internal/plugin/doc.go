/*
Package plugin discovers plugin directories and keeps the registry of
runnable plugins.

A plugin directory holds a manifest (plugin.json, plugin.yaml, plugin.yml
or plugin.toml), an entry script and an optional icon. Manifests are
checked against a JSON Schema and their version must be semver. Plugins
that fail any check are skipped with a warning.

When two roots provide the same id, the higher version is kept; equal
versions resolve to the later root so a user directory can override a
bundled plugin.
*/
package plugin
