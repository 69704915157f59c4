// Package ui implements the export dashboard using bubbletea's Elm architecture.
//
// The dashboard shows the export status snapshot, the auto-resume record and the registered sources. From it the
// user can run one batch (b), run batches until the quota or the work runs out (a), enable (e) or disable (d)
// auto-resume, trigger an auto-resume attempt (t) and refresh (r).
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving messages via the Msg union type.
// During a run, progress updates arrive on a channel fed by [tasks.ExportEngine.Drain].
package ui
