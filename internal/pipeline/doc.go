// Package pipeline schedules per-asset analysis steps. A Registry catalogs
// step definitions and a Runner starts eligible work, persisting each step's
// state independently so one failure never blocks a sibling. There is no
// background scheduler thread: waiting work is observed only when something
// runs the step again.
package pipeline
