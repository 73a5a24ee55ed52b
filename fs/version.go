package fs

// Version of driveback
var Version = "v0.3.0-DEV"
