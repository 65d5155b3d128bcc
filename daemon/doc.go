// Package daemon launches and supervises detached background processes.
//
// A daemon is a small process tree: the guardian detaches from the caller,
// owns the marker file, and runs a spawn/wait/restart loop around one
// executor at a time; the executor invokes a registered entry function and
// reports success or failure through its exit status. Termination signals
// flow down the tree and are observed by user code through the quit token.
//
// Go cannot fork and re-enter a function, so child processes are created by
// re-executing the current binary with a role and an encoded launch spec in
// the environment. Programs embedding this package must call Main first
// thing in main(); when the process was spawned as a guardian, executor, or
// worker, Main runs that role and exits instead of returning.
package daemon
