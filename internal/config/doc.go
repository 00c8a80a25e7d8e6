// Package config loads roomsync configuration.
//
// Values come from four layers, later ones winning:
//
//  1. built-in defaults
//  2. a YAML file (optional)
//  3. environment variables prefixed ROOMSYNC_
//  4. overrides, typically command line flags
//
// Environment keys separate levels with a double underscore, so
// ROOMSYNC_SERVER__PING_INTERVAL sets server.ping_interval and
// ROOMSYNC_STORAGE__S3__BUCKET sets storage.s3.bucket.
//
// # Configuration File Structure
//
//	server:
//	  address: ":8787"
//	  allowed_origins: ["https://draw.example.com"]
//	persistence:
//	  interval: 10s
//	storage:
//	  backend: s3
//	  s3:
//	    bucket: rooms
//	    endpoint: https://<account>.r2.cloudflarestorage.com
//	log:
//	  level: info
//	  format: json
//
// # Usage
//
//	cfg, err := config.Load("roomsync.yaml", nil)
//	if err != nil {
//	    errors.PrintError(os.Stderr, err)
//	    os.Exit(1)
//	}
package config
