// Package config loads the run configuration of a contractd mock server.
//
// A configuration file is YAML:
//
//	server:
//	  bind: 127.0.0.1:8080
//	  tieBreak: best-fit
//	  corsPreflight: true
//	  maxBodySize: 1048576
//	  readTimeout: 10s
//	  tls:
//	    enabled: true
//	logging:
//	  level: debug
//	  format: json
//
// Missing fields keep the values of Default.
package config
