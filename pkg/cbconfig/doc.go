/*
Package cbconfig holds the configuration surface from spec §6: every
tunable the router exposes, with the same defaults a Couchbase SDK ships.
ClusterConfig is a plain struct built by callers (or loaded from YAML via
LoadFile, grounded on the teacher's use of gopkg.in/yaml.v3) and validated
once before use, matching the teacher's Config-struct-plus-New-validates
convention (pkg/manager.Config, pkg/worker.Config).
*/
package cbconfig
