// Package app wires node dependencies for the CLI.
//
// It loads Config from the node home, builds the logger, the encrypted file
// stores, the relay transport and the session orchestrator, and exposes them
// via the Wire struct for commands to use.
package app
