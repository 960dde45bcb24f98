// Package config loads and validates the controller's configuration.
//
// Configuration comes from one YAML file read at startup, with
// defaults for everything a small installation can leave unset.
// Secrets (broker password, InfluxDB token) can be injected through
// GARAGEDOOR_* environment variables so the file itself stays free of
// credentials. Validation runs once after loading; a config that
// passes Validate never surprises the door logic later.
//
// Durations are stored as plain numbers in the sections they belong to
// (seconds or milliseconds, named by the field) and exposed as
// time.Duration through accessor methods like DoorConfig.MaxTravel.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.Door.MaxTravel()
package config
