// Package domain defines core data models, interfaces and sentinel errors
// shared across the node and the relay. It contains plain types (wire and
// state) and contracts only.
package domain
