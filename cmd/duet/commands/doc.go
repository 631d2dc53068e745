// Package commands defines the duet CLI and wires dependencies for subcommands.
//
// Commands
//
//   - signup <telephone> <name>  Create keys and register with the relay
//   - run <telephone>            Log in and open the interactive session
//   - fingerprint                Print the identity fingerprint
//
// Inside run:
//
//	create-chat <telephone> <name> [description]
//	send <chat> <message>
//	chats
//	info
//	logout
//	login
//	exit
//
// # Implementation
//
// The root command loads the node config, opens the log file and builds the
// dependency graph (stores, transport, orchestrator) before any subcommand
// runs. Commands that talk to the relay run the orchestrator event loop in
// the background for their lifetime.
package commands
