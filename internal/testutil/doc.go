// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing consult requests and file fixtures.
// They are not intended for production usage.
package testutil
