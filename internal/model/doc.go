// Package model defines the data types shared across exitprobe.
//
// The types here are plain data with no behavior beyond construction and
// summarization. They are the lingua franca between the runner, the
// session orchestrator, the database layer, and the report writers, so
// the package deliberately imports nothing from the rest of the module.
package model
