// Package planner turns scanned files and categorization suggestions into an
// organization plan, checks that plan against the live filesystem, and
// rewrites destinations so no two operations (or an operation and an existing
// file) collide.
//
// The intended host flow is:
//
//	plan, _ := p.CreatePlan(files, suggestions, base)
//	plan = planner.ResolveConflicts(plan, fs, opts.MaxFilenameLength)
//	if errs := v.Validate(plan); len(errs) > 0 { ... }
//
// Nothing in this package mutates the filesystem.
package planner
