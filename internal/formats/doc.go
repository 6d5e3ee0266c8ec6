// Package formats defines the document format tags the service understands
// and resolves (input, output) pairs into conversion plans. The resolver is a
// pure lookup over a fixed table; the supported-format graph is small and
// enumerable, never discovered at runtime.
package formats
