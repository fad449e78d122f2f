// Package runner drives unified test files through an Executor.
//
// Plan decides, per test case, whether it is eligible on an environment.
// Run executes the eligible cases: it asks the executor to create entities
// and seed data, runs the operations in order (scheduling runOnThread
// operations onto worker threads), checks each operation's declared error
// or result, then compares observed events and final collection contents.
// The first failed check ends a case.
//
// The runner never talks to a server itself; operation dispatch, entity
// bookkeeping and event capture belong to the Executor.
package runner
