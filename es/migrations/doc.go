// Package migrations provides SQL migration generation.
//
// To generate migrations, use the migrate-gen command:
//
//	go run github.com/getpup/pupkernel/cmd/migrate-gen -adapter postgres -output migrations
//
// Or add a go generate directive to your code:
//
//	//go:generate go run github.com/getpup/pupkernel/cmd/migrate-gen -adapter sqlite -output ../../migrations
//
// Stores and tests that create their schema at startup can call SQL and
// Statements directly instead of writing a file.
package migrations
