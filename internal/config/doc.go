// Package config loads waypoint.json or waypoint.toml.
//
// # Configuration File Structure
//
//	{
//	  "manifest": "routes.yaml",
//	  "basepath": "/app",
//	  "cache": {
//	    "staleTime": "0s",
//	    "preloadStaleTime": "30s",
//	    "gcTime": "30m",
//	    "maxEntries": 1000
//	  },
//	  "navigation": {
//	    "maxRedirects": 8,
//	    "loaderConcurrency": 16,
//	    "errorBoundary": true,
//	    "trailingSlash": "never"
//	  },
//	  "server": {
//	    "host": "localhost",
//	    "port": 7070
//	  },
//	  "s3": {
//	    "region": "eu-west-1"
//	  },
//	  "metrics": {"enabled": true},
//	  "log": {"level": "debug", "format": "json"}
//	}
//
// Durations are Go duration strings or numbers of milliseconds. Missing
// fields take the values of New.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Addr())
package config
