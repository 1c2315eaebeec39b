// Package report renders probe session results.
//
// Three formats are provided: a human-readable text summary for the
// terminal, JSON for tool integration, and GitHub Flavored Markdown for
// sharing measurement write-ups. All writers implement the same Writer
// interface so the CLI can treat them uniformly.
package report
