// Package paramspec is the declarative catalog of camera parameters.
//
// For every parameter group (Exposure, Paint, Tally, Camera, NTP, Battery,
// Lens) it declares the HTTP GET used to poll the group and, per
// parameter, the HTTP verb/path template and value encoding used to set
// it. The registry is read-only at runtime and is the single source of
// truth for parameter metadata: nothing else in this module redeclares a
// parameter's wire shape.
package paramspec
