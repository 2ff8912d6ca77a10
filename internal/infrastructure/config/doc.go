// Package config handles loading and validating the Teslemetry bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The Teslemetry access token grants control of energy equipment; set it
//     via GRAYLOGIC_TESLEMETRY_TOKEN rather than the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Teslemetry.GetLiveStatusInterval())
package config
