// Package tables registers the entity definitions with the core registry.
// Import this package for its side effects to make them available.
//
// Each entity file uses init() to register its definition; column aliases
// list every header spelling seen in the back-office exports.
package tables
