// Package module is the module-plugin contract (spec §4.9/§6): the
// plug-in ecosystem itself is out of scope, but the interface is, plus
// two reference modules that ground it.
package module

import "github.com/streamyara/streamyara/pkg/types"

// Fields is the structure a module installs into the VM's root scope,
// resolved by types.ModuleFieldExpr at condition-evaluation time.
type Fields map[string]types.Value

// Module is the collaborator contract: given the bound buffer and an
// optional hint (e.g. a declared file extension), produce the fields
// visible to `module_name.field` condition expressions.
type Module interface {
	// Name is the identifier rules reference, e.g. "hash" in "hash.md5".
	Name() string
	// Init computes this module's fields for one buffer. Called once per
	// stream on first activation (spec §4.6 switch_to_stream step 2).
	Init(input []byte, hint string) (Fields, error)
}

// Bool wraps a boolean into a Fields-compatible Value.
func Bool(b bool) types.Value { return types.Value{Kind: types.VBool, B: b} }

// Int wraps an integer into a Fields-compatible Value.
func Int(i int64) types.Value { return types.Value{Kind: types.VInt, I: i} }

// String wraps a string into a Fields-compatible Value.
func String(s string) types.Value { return types.Value{Kind: types.VString, S: s} }
