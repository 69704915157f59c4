// package resume keeps a user's export moving without user involvement.
//
// The per-user [models.AutoResume] record is a small state machine (disabled, active, paused) whose every change
// goes through the pure [Transition] function. [Controller] applies it around one export batch under the user's
// lease, and [Scheduler] calls [Controller.Tick] on an interval.
package resume
