// Package internal contains the implementation packages for fibre.
//
// # Package Organization
//
// The engine itself:
//
//   - keypath: addresses into nested plain data and the relations between them
//   - value: plain-data conventions shared by the store and the evaluator
//   - expression: scanning, dependency extraction and evaluation of bindings
//   - store: component state with a subscription trie keyed by key paths
//   - nodepath: positional node addresses recorded at compile time
//   - dom: the document tree the engine binds to, with events and properties
//   - template: compiles annotated HTML into directive lists
//   - scheduler: defers batched updates to a later turn
//   - component: instantiates compiled templates into live components
//
// Around the engine:
//
//   - config: viper backed settings for the compiler, logging, scanning and serving
//   - logging: structured logging on log/slog
//   - errors: FibreError with stable codes for compile and runtime failures
//   - state: YAML initial state and key=value assignments
//   - scanner: discovers component files and defines them in a registry
//   - watcher: debounced fsnotify change batches
//   - server: preview server with websocket reload
//   - version: build identity
//
// # Update Flow
//
// A store write notifies the subscriptions whose key paths are related to
// the written path. Each subscription marks its directive dirty and asks
// the scheduler for a flush, so writes made in the same turn produce a
// single DOM update per directive.
package internal
