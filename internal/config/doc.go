// Package config provides configuration parsing for textcanvas.
//
// The configuration is stored in textcanvas.json next to where the server
// is started. Every field is optional; command-line flags override the
// file.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 10500,
//	    "frameDelay": "100ms",
//	    "handshakeTimeout": "2s"
//	  },
//	  "store": {
//	    "dsn": "sqlite:textcanvas.db"
//	  },
//	  "http": {
//	    "address": "127.0.0.1:10501"
//	  },
//	  "export": {
//	    "bucket": "canvas-snapshots",
//	    "prefix": "snapshots/",
//	    "region": "us-east-1"
//	  },
//	  "discovery": {
//	    "enabled": true,
//	    "instance": "studio"
//	  },
//	  "log": {
//	    "level": "info",
//	    "json": false
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.LoadOptional(".")
//	if err != nil {
//	    return err
//	}
//
//	srv := server.New(cfg.ServerConfig(), handler)
package config
