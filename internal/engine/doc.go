// Package engine is the supervisor wiring discovery, the config store,
// and per-device sessions and parameter models together. It is the sole
// owner of every device.Session and model.ParameterModel the process
// creates; every other component looks a device up by DeviceId rather
// than holding a direct reference, avoiding the cyclic ownership the
// original single-process design allowed itself (spec.md §4.F, §9).
package engine
