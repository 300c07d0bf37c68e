package sandbox

import (
	lua "github.com/yuin/gopher-lua"
)

// deniedBase are base library globals removed after opening it.
var deniedBase = []string{
	"collectgarbage", "dofile", "gcinfo", "getfenv", "getmetatable", "load",
	"loadfile", "loadstring", "module", "newproxy", "print", "rawequal",
	"rawget", "rawlen", "rawset", "require", "setfenv", "setmetatable", "_printregs",
	"_G",
}

// deniedString are string library functions removed after opening it.
var deniedString = []string{"dump", "rep"}

// newState opens the allowed libraries and binds the builtins and memory
// hooks. The returned meter records whether a limit was hit.
func newState(cfg Config) (*lua.LState, *meter) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       cfg.CallStackSize,
		RegistryMaxSize:     cfg.RegistryMaxSize,
		IncludeGoStackTrace: false,
	})

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range deniedBase {
		L.SetGlobal(name, lua.LNil)
	}
	if str, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable); ok {
		for _, name := range deniedString {
			str.RawSetString(name, lua.LNil)
		}
	}

	m := newMeter(cfg)
	m.install(L)

	b := &builtins{maxLen: cfg.MaxSequenceLen, meter: m}
	for name, fn := range b.functions() {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	return L, m
}
