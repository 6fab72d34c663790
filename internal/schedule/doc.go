// Package schedule starts prompt runs on a timetable.
//
// # Schedule formats
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with optional
//     seconds. Example: "0 9 * * *" or "*/30 * * * * *".
//   - Cron descriptors: "@hourly", "@daily", "@every 45m".
//   - Interval durations: Go duration strings like "2h30m".
//
// Each firing calls the configured trigger. The trigger is expected to be
// idempotent (starting a run that is already running is a no-op), so
// overlapping firings are harmless.
package schedule
