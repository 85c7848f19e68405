/*
Package isolate owns one goja runtime per probe run.

A Manager compiles the plugin script, hardens the global scope and injects
the ctx object before anything runs. Each Isolate drives its VM from a
goja_nodejs event loop: Load, Invoke, Await and Export are jobs queued onto
the loop, and timer callbacks and capability completions land on the same
goroutine.

Dispose may be called from any goroutine. It interrupts the VM, closes the
capability bridge and terminates the loop, so nothing from a run survives it.
*/
package isolate
