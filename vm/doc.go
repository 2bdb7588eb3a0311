// Package vm implements the interpreter that runs host, mod and generated
// units.
//
// This package contains:
//   - the dynamic value representation and object layout
//   - lazy class linking from a code source, with one-time static init
//   - static, virtual and native dispatch by name and exact parameter types
//   - enum constants and dispatch tables backed by the enum registry
//   - the bytecode interpreter
package vm
