// Package models defines domain entities and persistence interfaces for the ytexport export pipeline.
//
// Persistent entities:
//   - [Source] : a playlist or channel registered for export, with its continuation [Cursor]
//   - [Video] : one imported record, unique per user by external video id
//   - [AutoResume] : the per-user auto-resume state machine record
//
// Entities embed [Entity] which provides ID and timestamps, so every entity satisfies [Model].
// The [Repository] interface defines the standard CRUD operations for database access.
package models
