package model

import "time"

// CityMetadata describes a registered city and where its command port lives.
type CityMetadata struct {
	Name    string `json:"name" yaml:"name"`
	ID      string `json:"id" yaml:"id"`
	Map     string `json:"map" yaml:"map"`
	Address string `json:"address" yaml:"address"` // host:port
}

// Telemetry is the latest snapshot a city reported about its simulation.
type Telemetry struct {
	Running    bool    `json:"simrunning" cbor:"simrunning"`
	Elapsed    float64 `json:"elapsed" cbor:"elapsed"`
	Population uint32  `json:"population" cbor:"population"`
}

// RelaySample records the outcome of one command relayed to a city.
type RelaySample struct {
	Timestamp time.Time
	City      string
	Address   string
	Outcome   string // ok|response|connect|write|read|timeout
	RTTMs     float64
	Bytes     int
}
