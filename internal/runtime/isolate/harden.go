package isolate

import "github.com/dop251/goja"

const defaultMaxCallStackSize = 1024

// removedGlobals are host or module hooks a probe has no business with.
// Repeating and immediate timers go too: only setTimeout keeps a run alive.
var removedGlobals = []string{
	"require", "process", "module", "exports", "eval",
	"setInterval", "clearInterval", "setImmediate", "clearImmediate",
}

// harden strips globals and blocks the Function constructor.
func harden(vm *goja.Runtime, maxCallStack int) {
	if maxCallStack <= 0 {
		maxCallStack = defaultMaxCallStackSize
	}
	vm.SetMaxCallStackSize(maxCallStack)

	for _, name := range removedGlobals {
		vm.Set(name, goja.Undefined())
	}

	_, _ = vm.RunString(`(function() {
		try {
			Object.defineProperty(Function.prototype, 'constructor', {
				value: function() { throw new TypeError('Function constructor is disabled'); },
				writable: false,
				configurable: false
			});
		} catch (e) {}
	})();`)
}
