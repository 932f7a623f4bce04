// Package config loads the secureqr service configuration.
//
// Values are layered, lowest precedence first:
//
//	built-in defaults
//	config file (.yaml/.yml via gopkg.in/yaml.v3, .json/.jsonc via tidwall/jsonc)
//	.env file (github.com/joho/godotenv, never overriding the real environment)
//	environment variables (PORT, SECUREQR_*)
//	command-line flags (applied by the cli package)
//
// JSONC (JSON with comments and trailing commas) is accepted for .json
// files too, so hand-edited configs may carry comments.
package config
