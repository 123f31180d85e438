// Package logging provides the structured logging facade used across
// stagehand. It wraps log/slog behind printf-style helpers that carry a
// subsystem tag, so call sites stay terse:
//
//	logging.Info("Reconciler", "Reconciling playbook %s", name)
//
// Init must be called once at startup to select the filter level and the
// output writer; before that, messages fall back to stderr so early
// failures are never silent.
package logging
