package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/flagx"
)

var ownedFlags = flagx.Owned{
	Value: []string{"-a", "-w", "-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e", "-m", "-l"},
	Bool:  []string{"-W"},
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-w string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   capability HMAC secret
//	-t int      capability validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m int      max upload size, bytes
//	-l string   log level
//	-W          run the cleanup worker inside the server process
//
// Arguments not listed above are ignored, so the JSON -c flag and the
// flags of other layers can share os.Args. A parse error panics.
func parseFlags(config *Config, args []string) {
	args = flagx.Filter(args, ownedFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the HTTP API")
	fs.StringVar(&config.EndpointAddrGRPC, "w", config.EndpointAddrGRPC, "address and port of the worker health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CapabilitySecret, "s", config.CapabilitySecret, "capability secret key")

	capabilityTTL := fs.Int("t", int(config.CapabilityTTL.Minutes()), "capability validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.Int64Var(&config.MaxUploadBytes, "m", config.MaxUploadBytes, "max upload size in bytes")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.EmbeddedWorker, "W", config.EmbeddedWorker, "run cleanup worker in-process")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CapabilityTTL = time.Duration(*capabilityTTL) * time.Minute
}
