// Package services defines the error taxonomy shared by the conversion
// pipeline and its collaborators, plus context helpers for correlation
// metadata. All pipeline failures are classified against the sentinel errors
// here; nothing crosses the core boundary as an unstructured fault.
package services
