// Package status maps machine status labels to display icons and color
// classes. Both functions are pure and case-insensitive.
//
// The two mappings intentionally disagree on their default bucket: Classify
// treats unrecognized statuses like "Idle" (warning icon), while ColorClass
// sends them to a neutral gray. ColorClass additionally separates
// in-production-like statuses into their own bucket so an actively working
// machine is not rendered as plain green or red.
package status
