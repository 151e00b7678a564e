package version

// Set at build time with
// -ldflags "-X github.com/Layr-Labs/feeledger/internal/version.Version=v1.0.0 -X github.com/Layr-Labs/feeledger/internal/version.Commit=<sha>"
var (
	Version = "unknown"
	Commit  = "unknown"
)

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
